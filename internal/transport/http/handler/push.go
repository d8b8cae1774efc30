package handler

import (
	"net/http"

	"github.com/planboard/notify/internal/application/subscription"
	"github.com/planboard/notify/internal/domain"
	"github.com/planboard/notify/internal/transport/http/middleware"
)

// PushUnavailableMessage is returned when the server has no VAPID key pair.
const PushUnavailableMessage = "push notifications not configured"

// PushHandler handles the push subscription registry endpoints.
type PushHandler struct {
	svc subscription.Service
}

func NewPushHandler(svc subscription.Service) *PushHandler {
	return &PushHandler{svc: svc}
}

// PublicKey reports the VAPID public key. A missing key is not an error: the
// client shows the message and keeps working without push.
func (h *PushHandler) PublicKey(w http.ResponseWriter, _ *http.Request) {
	key, ok := h.svc.ServerPublicKey()
	if !ok {
		writeJSON(w, http.StatusOK, PublicKeyEnvelope{Enabled: false, Message: PushUnavailableMessage})
		return
	}
	writeJSON(w, http.StatusOK, PublicKeyEnvelope{Enabled: true, PublicKey: key})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.SaveSubscriptionRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.svc.Save(r.Context(), req, claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RemoveSubscriptionRequest
	if !decodeJSON(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Remove(r.Context(), claims.UserID, req.Endpoint); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "unsubscribed"})
}
