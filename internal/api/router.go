package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-nova/codecd/internal/auth"
	"github.com/micro-nova/codecd/internal/hardware"
	"github.com/micro-nova/codecd/internal/metrics"
)

// Deps are the router's collaborators.
type Deps struct {
	Codec  Codec
	IRQ    Interrupts
	Events EventBus
	Auth   *auth.Service
	Chip   hardware.ChipInfo
	// CalibrationPath is where PUT /api/calibration persists. Empty keeps
	// updates in memory only.
	CalibrationPath string
}

// NewRouter creates and returns the main HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{
		codec:  d.Codec,
		irq:    d.IRQ,
		events: d.Events,
		chip:   d.Chip,
		calib:  d.CalibrationPath,
	}

	r.Handle("/metrics", metrics.Handler())

	// API routes (auth required)
	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Middleware)
		}

		r.Get("/api/status", h.getStatus)

		// Power domain
		r.Post("/api/streams/{dir}/{action}", h.stream)
		r.Post("/api/adc/{ch}/{action}", h.adc)
		r.Post("/api/chargepump/{action}", h.chargePump)
		r.Put("/api/mute", h.setMute)
		r.Post("/api/bandgap/{mode}", h.setBandgap)

		// Detection
		r.Get("/api/calibration", h.getCalibration)
		r.Put("/api/calibration", h.putCalibration)
		r.Post("/api/irq/{line}", h.injectIRQ)

		// SSE
		r.Get("/api/subscribe", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
