package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Exports   ExportsConfig   `mapstructure:"exports"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Email     EmailConfig     `mapstructure:"email"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// IdentityConfig holds the signing secret for identity-provider webhooks.
type IdentityConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	SubmitPerMinute   int `mapstructure:"submit_per_minute"`
	APIReadPerMinute  int `mapstructure:"api_read_per_minute"`
	APIWritePerMinute int `mapstructure:"api_write_per_minute"`
}

type DeliveryConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

type ExportsConfig struct {
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
}

// EventsConfig selects the broker. With Embedded set, an in-process NATS
// server is started and NATSURL is ignored.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Embedded      bool   `mapstructure:"embedded"`
	EmbeddedPort  int    `mapstructure:"embedded_port"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type EmailConfig struct {
	Provider string     `mapstructure:"provider"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("database.path", "./data/formsmith.db")
	v.SetDefault("database.max_connections", 1)

	v.SetDefault("jwt.issuer", "formsmith")
	v.SetDefault("jwt.access_token_ttl", time.Hour)

	v.SetDefault("rate_limit.submit_per_minute", 30)
	v.SetDefault("rate_limit.api_read_per_minute", 1000)
	v.SetDefault("rate_limit.api_write_per_minute", 100)

	v.SetDefault("delivery.poll_interval", 10*time.Second)
	v.SetDefault("delivery.batch_size", 50)
	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("delivery.base_backoff", 30*time.Second)
	v.SetDefault("delivery.http_timeout", 10*time.Second)

	v.SetDefault("exports.token_ttl", 5*time.Minute)
	v.SetDefault("exports.sweep_interval", time.Hour)

	v.SetDefault("events.subject_prefix", "formsmith")
	v.SetDefault("events.embedded_port", 4222)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at path and overlays environment variables
// (server.port -> SERVER_PORT). A missing file is not an error; defaults
// and the environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
