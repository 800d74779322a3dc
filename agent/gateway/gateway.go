// Package gateway serves the assistant's HTTP surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/smart-zoo-assistant/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/auth"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
	"github.com/tanpawarit/smart-zoo-assistant/api/server"
)

// PromptHandler runs one prompt for an authenticated caller.
type PromptHandler interface {
	HandlePrompt(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// NotificationSource lists the notifications visible to a credential.
type NotificationSource interface {
	Notifications(ctx context.Context, token string) ([]catalog.StaffNotification, error)
}

var _ NotificationSource = (*tool.Client)(nil)

type Options struct {
	Verifier      auth.Verifier
	Prompts       PromptHandler
	Notifications NotificationSource
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type promptResponse struct {
	Response string `json:"response"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func NewRouter(opts Options) http.Handler {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(hlog.NewHandler(logger))
	r.Use(server.AccessLog("agent"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h := &handlers{prompts: opts.Prompts, notifications: opts.Notifications}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Authenticate(opts.Verifier))

		pr.Post("/prompt", h.prompt)
		pr.Get("/staff_notifications", h.staffNotifications)
	})

	return r
}

type handlers struct {
	prompts       PromptHandler
	notifications NotificationSource
}

func (h *handlers) prompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeMessage(w, http.StatusBadRequest, "prompt is required")
		return
	}

	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	role, err := auth.ResolveRole(claims)
	if err != nil {
		writeMessage(w, http.StatusForbidden, err.Error())
		return
	}
	token, _ := auth.TokenFrom(r.Context())

	res, err := h.prompts.HandlePrompt(r.Context(), orchestrator.Request{
		Query:  req.Prompt,
		Role:   role,
		UserID: claims.Subject,
		Token:  token,
	})
	if err != nil {
		status, msg := promptErrorStatus(err)
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("prompt failed")
		writeMessage(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, promptResponse{Response: res.Reply})
}

func (h *handlers) staffNotifications(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFrom(r.Context())

	notes, err := h.notifications.Notifications(r.Context(), token)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("backend notifications failed")
		switch {
		case errors.Is(err, tool.ErrForbidden):
			writeMessage(w, http.StatusForbidden, "permission denied")
		default:
			writeMessage(w, http.StatusBadGateway, "backend unavailable")
		}
		return
	}
	if notes == nil {
		notes = []catalog.StaffNotification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func promptErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, contractx.ErrModelInvoke), errors.Is(err, contractx.ErrSchemaViolation):
		return http.StatusBadGateway, "assistant is unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
