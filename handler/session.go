package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type sessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	CreatedAt int64  `json:"createdAt"`
	Message   string `json:"message,omitempty"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.uc.Sessions.Create(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Success:   true,
		SessionID: s.SessionID,
		CreatedAt: s.CreatedAt,
		Message:   "Session created successfully",
	})
}

func (h *Handler) validateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.uc.Sessions.Validate(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, SessionID: s.SessionID, CreatedAt: s.CreatedAt})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.Sessions.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Session deleted successfully"})
}
