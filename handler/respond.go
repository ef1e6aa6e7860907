package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"fairstay-backend/internal/logging"
	"fairstay-backend/internal/usecase"
)

const (
	serviceName    = "FairStay MVP Backend API"
	serviceVersion = "1.0.0"
	timestampISO   = "2006-01-02T15:04:05.000Z07:00"
)

var now = time.Now

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("failed to marshal response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("failed to write response")
	}
}

// writeError is the single place errors become responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ue := usecase.AsError(err)
	status := statusFor(ue.Code)

	log := logging.Ctx(r.Context())
	ev := log.Info()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(ue.Err).Str("code", string(ue.Code)).Str("reason", ue.Reason).Msg("request failed")

	writeJSON(w, status, errorResponse{
		Success: false,
		Message: ue.Reason,
		Code:    string(ue.Code),
		Error:   h.detail(ue),
	})
}

// detail is the underlying cause shown next to the message. Internal causes
// stay hidden outside development.
func (h *Handler) detail(ue *usecase.Error) string {
	if ue.Err == nil {
		return ""
	}
	switch ue.Code {
	case usecase.ErrorUpstream, usecase.ErrorConfiguration:
		return ue.Err.Error()
	case usecase.ErrorInternal:
		if h.development {
			return ue.Err.Error()
		}
	}
	return ""
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorValidation:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return usecase.Validation("Failed to read request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return usecase.Validation("Invalid JSON body")
	}
	return nil
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, messageResponse{Success: false, Message: "Route not found"})
}

type bannerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Version string `json:"version"`
}

func banner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, bannerResponse{Success: true, Message: serviceName, Version: serviceVersion})
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Inference string `json:"inference,omitempty"`
}

// health always answers 200; the inference field reports the detector separately.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Success:   true,
		Status:    "healthy",
		Timestamp: now().UTC().Format(timestampISO),
	}
	if h.uc.Inference != nil {
		resp.Inference = inferenceStatus(r.Context(), h.uc.Inference)
	}
	writeJSON(w, http.StatusOK, resp)
}

func inferenceStatus(ctx context.Context, hc HealthChecker) string {
	if err := hc.Health(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.Ctx(ctx).Warn().Err(err).Msg("inference health check failed")
		}
		return "unhealthy"
	}
	return "healthy"
}
