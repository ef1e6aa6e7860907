package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/usecase"
)

type surveySubmitResponse struct {
	Success    bool   `json:"success"`
	ResponseID string `json:"responseId"`
	Message    string `json:"message"`
}

func (h *Handler) submitSurvey(w http.ResponseWriter, r *http.Request) {
	var in usecase.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.uc.Surveys.Submit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, surveySubmitResponse{
		Success:    true,
		ResponseID: resp.ResponseID,
		Message:    "Survey response saved successfully",
	})
}

type surveyResultsResponse struct {
	Success   bool                    `json:"success"`
	Stats     usecase.SurveyStats     `json:"stats"`
	Responses []domain.SurveyResponse `json:"responses"`
}

func (h *Handler) surveyResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.uc.Surveys.Results(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	responses := res.Responses
	if responses == nil {
		responses = []domain.SurveyResponse{}
	}
	writeJSON(w, http.StatusOK, surveyResultsResponse{Success: true, Stats: res.Stats, Responses: responses})
}

type surveyListResponse struct {
	Success   bool                    `json:"success"`
	Count     int                     `json:"count"`
	Responses []domain.SurveyResponse `json:"responses"`
}

func (h *Handler) sessionSurveys(w http.ResponseWriter, r *http.Request) {
	responses, err := h.uc.Surveys.BySession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if responses == nil {
		responses = []domain.SurveyResponse{}
	}
	writeJSON(w, http.StatusOK, surveyListResponse{Success: true, Count: len(responses), Responses: responses})
}
