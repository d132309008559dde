package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// storefrontOrigins serve affiliate links when no origins are configured.
var storefrontOrigins = []string{
	"http://localhost:3000",
	"https://packfinderz.com",
	"https://www.packfinderz.com",
}

// CORS lets the storefront call the public click endpoint from the browser.
// Preflight results are cached for five minutes.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = storefrontOrigins
	}
	policy := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return policy.Handler
}
