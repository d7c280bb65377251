package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows browser clients from origins to call the API with
// credentials.
func CORS(origins []string) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Request-ID"},
	})
	return c.Handler
}
