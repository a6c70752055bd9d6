// Package router assembles the HTTP surface of the CRM: funnel management,
// call worklists, recall rules, referrals, call logs, CTI ingestion, and the
// dashboard reports.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/catchallhq/dental-crm/internal/callbacks"
	"github.com/catchallhq/dental-crm/internal/calllog"
	"github.com/catchallhq/dental-crm/internal/cti"
	httpmiddleware "github.com/catchallhq/dental-crm/internal/http/middleware"
	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/internal/recall"
	"github.com/catchallhq/dental-crm/internal/referrals"
	"github.com/catchallhq/dental-crm/internal/reports"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger           *logging.Logger
	PatientsHandler  *patients.Handler
	CallbacksHandler *callbacks.Handler
	RecallHandler    *recall.Handler
	ReferralsHandler *referrals.Handler
	CallLogHandler   *calllog.Handler
	CTIHandler       *cti.Handler
	ReportsHandler   *reports.Handler
	Hub              *cti.Hub

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// StaffJWTSecret guards the staff API. Empty disables auth, which is
	// only acceptable in local development.
	StaffJWTSecret string

	// CTIToken guards the phone adapter endpoints.
	CTIToken string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Phone system adapter endpoints. The adapter is a machine, not a
	// staff member, so it authenticates with a shared token.
	if cfg.CTIHandler != nil {
		r.Group(func(adapter chi.Router) {
			adapter.Use(requireCTIToken(cfg.CTIToken))
			adapter.Post("/cti/calls/incoming", cfg.CTIHandler.Incoming)
			adapter.Post("/cti/calls/ended", cfg.CTIHandler.Ended)
		})
	}

	// Staff API.
	r.Group(func(staff chi.Router) {
		if cfg.StaffJWTSecret != "" {
			staff.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))
		}

		if cfg.Hub != nil {
			staff.Get("/ws", cfg.Hub.ServeWS)
		}

		if h := cfg.PatientsHandler; h != nil {
			staff.Route("/patients", func(r chi.Router) {
				r.Post("/", h.Create)
				r.Get("/", h.List)
				r.Route("/{patientID}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Patch("/", h.Update)
					r.Post("/status", h.Transition)
					r.Post("/reactivate", h.Reactivate)
				})
			})
		}

		if h := cfg.CallbacksHandler; h != nil {
			staff.Route("/callbacks", func(r chi.Router) {
				r.Post("/", h.Create)
				r.Get("/", h.List)
				r.Get("/overdue", h.Overdue)
				r.Post("/{callbackID}/resolve", h.Resolve)
			})
		}

		if h := cfg.RecallHandler; h != nil {
			staff.Route("/recall", func(r chi.Router) {
				r.Route("/rules", func(r chi.Router) {
					r.Get("/", h.ListRules)
					r.Put("/", h.UpsertRule)
					r.Delete("/{ruleID}", h.DeleteRule)
				})
				r.Post("/schedule", h.Schedule)
				r.Route("/dispatches", func(r chi.Router) {
					r.Get("/", h.ListDispatches)
					r.Post("/{dispatchID}/booked", h.MarkBooked)
				})
			})
		}

		if h := cfg.ReferralsHandler; h != nil {
			staff.Route("/referrals", func(r chi.Router) {
				r.Post("/", h.Create)
				r.Get("/", h.List)
				r.Get("/top", h.Top)
				r.Post("/{referralID}/thanks", h.SendThanks)
			})
		}

		if h := cfg.CallLogHandler; h != nil {
			staff.Route("/calls", func(r chi.Router) {
				r.Post("/", h.Create)
				r.Get("/", h.List)
				r.Route("/{callID}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Post("/analyze", h.Analyze)
					r.Post("/patient", h.LinkPatient)
					r.Post("/recording", h.UploadRecording)
				})
			})
		}

		if h := cfg.ReportsHandler; h != nil {
			staff.Route("/reports", func(r chi.Router) {
				r.Get("/funnel", h.Funnel)
				r.Get("/urgent", h.Urgent)
				r.Get("/recall", h.Recall)
				r.Get("/revenue", h.Revenue)
			})
		}
	})

	return r
}

// requireCTIToken gates the adapter endpoints behind a shared secret in the
// X-CTI-Token header. An empty configured token rejects everything.
func requireCTIToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-CTI-Token") != token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
