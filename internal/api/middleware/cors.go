package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"formsmith/internal/platform/config"
)

// CORS answers preflight requests and sets the allow headers for origins in
// the configured list. "*" allows any origin.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Authorization", "Content-Type", BusinessHeader}
	}

	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		MaxAge:         cfg.MaxAge,
	}).Handler
}
