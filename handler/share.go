package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fairstay-backend/internal/usecase"
)

type pdfResponse struct {
	Success  bool   `json:"success"`
	PDF      string `json:"pdf"`
	Filename string `json:"filename"`
}

func (h *Handler) generatePDF(w http.ResponseWriter, r *http.Request) {
	rep, err := h.uc.Share.GeneratePDF(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pdfResponse{Success: true, PDF: rep.PDF, Filename: rep.Filename})
}

type shareResponse struct {
	Success   bool              `json:"success"`
	ShareData usecase.ShareData `json:"shareData"`
}

func (h *Handler) kakaoShare(w http.ResponseWriter, r *http.Request) {
	data, err := h.uc.Share.KakaoShare(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{Success: true, ShareData: data})
}
