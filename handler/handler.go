package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/integrations/objectstore"
	"fairstay-backend/internal/usecase"
)

const defaultMaxUploadBytes = 10 << 20

type SessionUseCase interface {
	Create(ctx context.Context, requestedID string) (domain.Session, error)
	Validate(ctx context.Context, sessionID string) (domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type ImageUseCase interface {
	Upload(ctx context.Context, in usecase.UploadInput) (domain.Image, error)
	RequestUploadURL(ctx context.Context, in usecase.UploadURLInput) (objectstore.PresignedUpload, error)
	ConfirmUpload(ctx context.Context, in usecase.ConfirmInput) (domain.Image, error)
	Analyze(ctx context.Context, imageID string) (usecase.AnalysisResult, error)
	Get(ctx context.Context, imageID string) (domain.Image, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.Image, error)
	DownloadURL(ctx context.Context, imageID string) (string, error)
	Delete(ctx context.Context, imageID string) error
}

type ShareUseCase interface {
	GeneratePDF(ctx context.Context, imageID string) (usecase.Report, error)
	KakaoShare(ctx context.Context, imageID string) (usecase.ShareData, error)
}

type SurveyUseCase interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (domain.SurveyResponse, error)
	Results(ctx context.Context) (usecase.SurveyResults, error)
	BySession(ctx context.Context, sessionID string) ([]domain.SurveyResponse, error)
}

// HealthChecker probes a dependency for the /health route.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// UseCases are the services behind the routes. Inference is optional.
type UseCases struct {
	Sessions  SessionUseCase
	Images    ImageUseCase
	Share     ShareUseCase
	Surveys   SurveyUseCase
	Inference HealthChecker
}

type Option func(*Handler)

// WithMaxUploadBytes caps the size of a multipart image upload.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithDevelopment exposes internal error detail in responses.
func WithDevelopment(dev bool) Option {
	return func(h *Handler) { h.development = dev }
}

// Handler is the HTTP surface of the backend. It is served directly by the
// local server and through Lambda by way of Lambda.Handle.
type Handler struct {
	uc             UseCases
	maxUploadBytes int64
	development    bool
	router         chi.Router
}

func NewHandler(uc UseCases, opts ...Option) (*Handler, error) {
	switch {
	case uc.Sessions == nil:
		return nil, errors.New("handler: session use case must not be nil")
	case uc.Images == nil:
		return nil, errors.New("handler: image use case must not be nil")
	case uc.Share == nil:
		return nil, errors.New("handler: share use case must not be nil")
	case uc.Surveys == nil:
		return nil, errors.New("handler: survey use case must not be nil")
	}
	h := &Handler{uc: uc, maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(correlationID)
	r.Use(allowAnyOrigin)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{correlationHeader},
		MaxAge:         300,
	}))
	r.Use(instrument)
	r.Use(h.recoverPanics)

	r.NotFound(routeNotFound)
	r.MethodNotAllowed(routeNotFound)

	r.Get("/", banner)
	r.Get("/health", h.health)

	r.Route("/api/session", func(r chi.Router) {
		r.Post("/create", h.createSession)
		r.Get("/validate/{sessionId}", h.validateSession)
		r.Delete("/{sessionId}", h.deleteSession)
	})

	r.Route("/api/image", func(r chi.Router) {
		r.Post("/upload", h.uploadImage)
		r.Post("/upload-url", h.requestUploadURL)
		r.Post("/confirm", h.confirmUpload)
		r.Post("/analyze/{imageId}", h.analyzeImage)
		r.Get("/session/{sessionId}", h.listSessionImages)
		r.Get("/{imageId}", h.getImage)
		r.Get("/{imageId}/download-url", h.imageDownloadURL)
		r.Delete("/{imageId}", h.deleteImage)
	})

	r.Route("/api/share", func(r chi.Router) {
		r.Post("/generate/{imageId}", h.generatePDF)
		r.Post("/kakao-share/{imageId}", h.kakaoShare)
	})

	r.Route("/api/survey", func(r chi.Router) {
		r.Post("/submit", h.submitSurvey)
		r.Get("/results", h.surveyResults)
		r.Get("/session/{sessionId}", h.sessionSurveys)
	})

	return r
}
