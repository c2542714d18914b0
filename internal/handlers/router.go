package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/clinicflow/internal/middleware"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires handlers into the HTTP surface
type RouterConfig struct {
	Identity middleware.IdentityConfig

	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	Metrics        bool

	Health        *HealthHandler
	Clinics       *ClinicHandler
	Visits        *VisitHandler
	Prescriptions *PrescriptionHandler
	WebSocket     *WebSocketHandler
}

// NewRouter builds the chi router
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	authenticated := middleware.Identity(cfg.Identity)
	doctor := middleware.RequireRole(models.RoleDoctor)
	patient := middleware.RequireRole(models.RolePatient)
	pharmacy := middleware.RequireRole(models.RolePharmacy)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Compress(5))

		r.Route("/clinics", func(r chi.Router) {
			// The access token is its own credential.
			r.Get("/token/{token}", cfg.Clinics.ResolveToken)

			r.Group(func(r chi.Router) {
				r.Use(authenticated, doctor)
				r.Post("/", cfg.Clinics.Create)
				r.Get("/mine", cfg.Clinics.ListMine)
				r.Post("/{clinicID}/deactivate", cfg.Clinics.Deactivate)
				r.Get("/{clinicID}/audit", cfg.Clinics.AuditTrail)
				r.Delete("/{clinicID}", cfg.Clinics.Delete)
			})
		})

		r.Route("/visits", func(r chi.Router) {
			r.Use(authenticated)
			r.With(patient).Post("/check-in", cfg.Visits.CheckIn)
			r.With(patient).Get("/mine", cfg.Visits.ListMine)
			r.With(doctor).Get("/waiting-room/{clinicID}", cfg.Visits.WaitingRoom)
			r.With(doctor).Post("/{visitID}/start", cfg.Visits.Start)
			r.Post("/{visitID}/cancel", cfg.Visits.Cancel)
			r.Get("/{visitID}", cfg.Visits.Get)
		})

		r.Route("/prescriptions", func(r chi.Router) {
			// So is the redemption secret, for the pharmacy's probe.
			r.Get("/secret/{secret}", cfg.Prescriptions.Lookup)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.With(doctor).Post("/", cfg.Prescriptions.Issue)
				r.With(patient).Get("/mine", cfg.Prescriptions.ListMine)
				r.With(pharmacy).Post("/secret/{secret}/redeem", cfg.Prescriptions.Redeem)
			})
		})
	})

	if cfg.WebSocket != nil {
		r.With(authenticated, doctor).Get("/ws", cfg.WebSocket.Connect)
	}

	return r
}
