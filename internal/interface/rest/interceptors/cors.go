package interceptors

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Cors lets browser clients from any origin call the api and read the request id.
var Cors = cors.Handler(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{
		http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
	},
	AllowedHeaders: []string{"*"},
	ExposedHeaders: []string{RequestIdHeader},
	MaxAge:         300,
})
