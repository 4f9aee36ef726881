package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "custos/internal/jwt_token"
	"custos/internal/platform/health"
	"custos/internal/platform/middleware"
)

// maxBodyBytes bounds decision request bodies. Contexts are small; a larger
// body is never legitimate.
const maxBodyBytes = 1 << 20

// NewRouter wires all public endpoints with middleware.
// Uses chi router for better middleware support and routing.
func NewRouter(authz *AuthzHandler, breakglass *BreakGlassHandler, healthHandler *health.Handler, tokens *jwttoken.Service, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	healthHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(SubjectAuth(tokens))
		authz.Register(r)
		breakglass.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAdminToken(adminToken, logger))
		authz.RegisterAdmin(r)
	})

	return r
}
