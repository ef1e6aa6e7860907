package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/usecase"
)

// multipartOverhead is headroom for form fields and boundaries on top of the file limit.
const multipartOverhead = 1 << 20

type imageView struct {
	ID                string                `json:"id"`
	SessionID         string                `json:"sessionId"`
	ImageURL          string                `json:"imageUrl"`
	ProcessedImageURL string                `json:"processedImageUrl,omitempty"`
	DamageAnalysis    domain.DamageAnalysis `json:"damageAnalysis"`
	CreatedAt         int64                 `json:"createdAt"`
}

func viewOf(img domain.Image) imageView {
	analysis := img.Analysis
	if analysis.Damages == nil {
		analysis.Damages = []domain.Damage{}
	}
	return imageView{
		ID:                img.ImageID,
		SessionID:         img.SessionID,
		ImageURL:          img.ImageURL,
		ProcessedImageURL: img.ProcessedImageURL,
		DamageAnalysis:    analysis,
		CreatedAt:         img.CreatedAt,
	}
}

type imageCreatedResponse struct {
	Success  bool   `json:"success"`
	ImageID  string `json:"imageId"`
	ImageURL string `json:"imageUrl"`
	Message  string `json:"message"`
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	in, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	img, err := h.uc.Images.Upload(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, imageCreatedResponse{
		Success:  true,
		ImageID:  img.ImageID,
		ImageURL: img.ImageURL,
		Message:  "Image uploaded successfully",
	})
}

// readUpload parses the multipart form: an "image" file part and a "sessionId" field.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (usecase.UploadInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return usecase.UploadInput{}, usecase.Validation("File too large")
		case errors.Is(err, http.ErrNotMultipart):
			return usecase.UploadInput{}, usecase.Validation("Request must be multipart/form-data")
		default:
			return usecase.UploadInput{}, usecase.Validation("Invalid multipart form")
		}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := usecase.UploadInput{SessionID: r.FormValue("sessionId")}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, usecase.Validation("Invalid image file")
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return in, usecase.Validation("Invalid image file")
	}
	if int64(len(body)) > h.maxUploadBytes {
		return in, usecase.Validation("File too large")
	}
	in.Filename = header.Filename
	in.ContentType = header.Header.Get("Content-Type")
	in.Body = body
	return in, nil
}

type uploadURLResponse struct {
	Success   bool   `json:"success"`
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
	ImageURL  string `json:"imageUrl"`
}

func (h *Handler) requestUploadURL(w http.ResponseWriter, r *http.Request) {
	var in usecase.UploadURLInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	up, err := h.uc.Images.RequestUploadURL(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{
		Success:   true,
		UploadURL: up.UploadURL,
		ObjectKey: up.ObjectKey,
		ImageURL:  up.ImageURL,
	})
}

func (h *Handler) confirmUpload(w http.ResponseWriter, r *http.Request) {
	var in usecase.ConfirmInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	img, err := h.uc.Images.ConfirmUpload(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, imageCreatedResponse{
		Success:  true,
		ImageID:  img.ImageID,
		ImageURL: img.ImageURL,
		Message:  "Image upload confirmed",
	})
}

type analysisResponse struct {
	Success           bool                  `json:"success"`
	ImageID           string                `json:"imageId"`
	Status            domain.AnalysisStatus `json:"status"`
	Damages           []domain.Damage       `json:"damages"`
	ProcessedImageURL string                `json:"processedImageUrl,omitempty"`
}

func (h *Handler) analyzeImage(w http.ResponseWriter, r *http.Request) {
	res, err := h.uc.Images.Analyze(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	damages := res.Damages
	if damages == nil {
		damages = []domain.Damage{}
	}
	writeJSON(w, http.StatusOK, analysisResponse{
		Success:           true,
		ImageID:           res.ImageID,
		Status:            res.Status,
		Damages:           damages,
		ProcessedImageURL: res.ProcessedImageURL,
	})
}

type imageListResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Images  []imageView `json:"images"`
}

func (h *Handler) listSessionImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.uc.Images.ListBySession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]imageView, 0, len(images))
	for _, img := range images {
		views = append(views, viewOf(img))
	}
	writeJSON(w, http.StatusOK, imageListResponse{Success: true, Count: len(views), Images: views})
}

type imageResponse struct {
	Success bool      `json:"success"`
	Image   imageView `json:"image"`
}

func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.uc.Images.Get(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Success: true, Image: viewOf(img)})
}

type downloadURLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

func (h *Handler) imageDownloadURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.uc.Images.DownloadURL(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadURLResponse{Success: true, URL: u})
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.Images.Delete(r.Context(), chi.URLParam(r, "imageId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Image deleted successfully"})
}
