package api

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/jmcleod/sessiongate/pipeline"
)

// CORS stage identity. It sits between logging and the gate: preflight
// requests carry no cookie and must be answered before the gate sees them.
const (
	CORSStageName = "cors"
	CORSOrder     = 15
)

// WithCORS allows cross-origin requests from origins. With no origins the
// stage is left out of the pipeline.
func WithCORS(origins ...string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

func corsStage(origins []string) pipeline.Stage {
	return pipeline.Stage{
		Name:  CORSStageName,
		Order: CORSOrder,
		Middleware: cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	}
}
