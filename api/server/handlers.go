package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/tanpawarit/smart-zoo-assistant/api/auth"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

type handlers struct {
	animals       *catalog.AnimalCatalog
	notifications *catalog.NotificationCatalog
	now           func() time.Time
}

type updateAnimalStatusRequest struct {
	Status string `json:"status"`
}

type notifyStaffRequest struct {
	Description string `json:"description"`
}

type emergencyRequest struct {
	Protocol    string `json:"protocol"`
	Description string `json:"description"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *handlers) listAnimals(w http.ResponseWriter, r *http.Request) {
	animals, err := h.animals.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, animals)
}

func (h *handlers) updateAnimalStatus(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := callerRole(w, r)
	if !ok {
		return
	}

	var req updateAnimalStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeMessage(w, http.StatusBadRequest, "status is required")
		return
	}

	animalID := chi.URLParam(r, "animalID")
	err := h.animals.AppendStatus(r.Context(), animalID, catalog.StatusEvent{
		Time:     h.now(),
		Status:   req.Status,
		UserRole: role,
		UserID:   claims.Subject,
	})
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Item not found")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().Str("animal_id", animalID).Str("user_role", string(role)).Msg("status appended")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	role, _, ok := callerRole(w, r)
	if !ok {
		return
	}
	list, err := h.notifications.ForRole(r.Context(), role)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) notifyStaff(w http.ResponseWriter, r *http.Request) {
	notifierRole, claims, ok := callerRole(w, r)
	if !ok {
		return
	}

	destination, err := catalog.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var req notifyStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeMessage(w, http.StatusBadRequest, "description is required")
		return
	}

	n, err := h.notifications.Record(r.Context(), catalog.StaffNotification{
		Time:            h.now(),
		Description:     req.Description,
		DestinationRole: destination,
		NotifierRole:    notifierRole,
		NotifierID:      claims.Subject,
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().
		Str("notification_id", n.ID).
		Str("destination_role", string(destination)).
		Str("description", n.Description).
		Msg("notification stored")
	w.WriteHeader(http.StatusNoContent)
}

// triggerEmergency is restricted to coordinators regardless of what the
// agent decided.
func (h *handlers) triggerEmergency(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := callerRole(w, r)
	if !ok {
		return
	}
	if role != catalog.RoleCoordinator {
		writeMessage(w, http.StatusForbidden, "only a COORDINATOR can trigger an emergency protocol")
		return
	}

	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Protocol) == "" {
		writeMessage(w, http.StatusBadRequest, "protocol is required")
		return
	}

	sent, err := h.notifications.Broadcast(r.Context(), req.Protocol, req.Description, role, claims.Subject)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	hlog.FromRequest(r).Warn().Str("protocol", req.Protocol).Int("notified_roles", len(sent)).Msg("emergency protocol triggered")
	w.WriteHeader(http.StatusNoContent)
}

// callerRole writes 403 and reports false when the caller's role cannot be
// resolved.
func callerRole(w http.ResponseWriter, r *http.Request) (catalog.Role, auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return "", auth.Claims{}, false
	}
	role, err := auth.ResolveRole(claims)
	if err != nil {
		writeMessage(w, http.StatusForbidden, err.Error())
		return "", auth.Claims{}, false
	}
	return role, claims, true
}

func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	writeMessage(w, http.StatusInternalServerError, "internal error")
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
