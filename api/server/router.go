// Package server exposes the animal and staff notification catalogs over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/smart-zoo-assistant/api/auth"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

type Options struct {
	Verifier      auth.Verifier
	Animals       *catalog.AnimalCatalog
	Notifications *catalog.NotificationCatalog
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func NewRouter(opts Options) http.Handler {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(hlog.NewHandler(logger))
	r.Use(AccessLog("api"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h := &handlers{animals: opts.Animals, notifications: opts.Notifications, now: now}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Authenticate(opts.Verifier))

		pr.Get("/animal", h.listAnimals)
		pr.Post("/animal/{animalID}/status", h.updateAnimalStatus)
		pr.Get("/staff/notification", h.listNotifications)
		pr.Post("/staff/notification/{role}", h.notifyStaff)
		pr.Post("/emergency/protocol", h.triggerEmergency)
	})

	return r
}

// AccessLog logs one line per request with the chi request id.
func AccessLog(surface string) func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("surface", surface).
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http request")
	})
}
