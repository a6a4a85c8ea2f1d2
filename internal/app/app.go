// Package app opens the resources shared by the server and worker
// binaries.
package app

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"formsmith/internal/engine/delivery"
	"formsmith/internal/engine/events"
	"formsmith/internal/platform/config"
	"formsmith/internal/platform/database"
)

// Runtime holds the migrated database and the event publisher.
type Runtime struct {
	DB        *sql.DB
	Publisher events.Publisher

	broker *events.Embedded
}

// Start opens and migrates the database, then connects the event
// publisher. A broker that cannot be reached degrades to a no-op publisher.
func Start(cfg *config.Config) (*Runtime, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	rt := &Runtime{DB: db, Publisher: events.Noop{}}

	url := cfg.Events.NATSURL
	if cfg.Events.Embedded {
		broker, err := events.StartEmbedded("127.0.0.1", cfg.Events.EmbeddedPort)
		if err != nil {
			log.Error().Err(err).Msg("embedded nats failed to start, events disabled")
		} else {
			rt.broker = broker
			url = broker.ClientURL()
		}
	}
	if url != "" {
		pub, err := events.NewNATSPublisher(url, cfg.Events.SubjectPrefix)
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("nats unavailable, events disabled")
		} else {
			rt.Publisher = pub
		}
	}
	return rt, nil
}

func (rt *Runtime) Close() {
	rt.Publisher.Close()
	if rt.broker != nil {
		rt.broker.Shutdown()
	}
	rt.DB.Close()
}

// Mailer picks the delivery mailer for the configured provider.
func Mailer(cfg config.EmailConfig) delivery.Mailer {
	switch cfg.Provider {
	case "smtp":
		return delivery.NewSMTPMailer(cfg.SMTP)
	default:
		log.Warn().Str("provider", cfg.Provider).Msg("no email provider configured, notifications are logged only")
		return delivery.LogMailer{}
	}
}
