package usecase

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/integrations/inference"
	"fairstay-backend/internal/integrations/objectstore"
	"fairstay-backend/internal/logging"
	"fairstay-backend/internal/metrics"
	"fairstay-backend/internal/repository"
)

const (
	damageTypeCrack     = "crack"
	damageLocation      = "detected"
	severityHigh        = "high"
	severityMedium      = "medium"
	severityLow         = "low"
	highSeverityAbove   = 0.8
	mediumSeverityAbove = 0.5
)

type ImageStore interface {
	PutImage(ctx context.Context, img domain.Image) error
	GetImage(ctx context.Context, imageID string) (domain.Image, error)
	ListImagesBySession(ctx context.Context, sessionID string) ([]domain.Image, error)
	UpdateImageAnalysis(ctx context.Context, u repository.AnalysisUpdate) (domain.Image, error)
	DeleteImage(ctx context.Context, imageID string) error
}

type ObjectStore interface {
	Upload(ctx context.Context, sessionID, filename, contentType string, body []byte) (objectstore.Stored, error)
	Download(ctx context.Context, key string) (objectstore.Object, error)
	Delete(ctx context.Context, key string) error
	PresignUpload(ctx context.Context, sessionID, filename, contentType string) (objectstore.PresignedUpload, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type Detector interface {
	Detect(ctx context.Context, image []byte, contentType string) (inference.Detection, error)
}

type ImageService struct {
	images   ImageStore
	objects  ObjectStore
	detector Detector
}

type UploadInput struct {
	SessionID   string `json:"sessionId" validate:"required"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType" validate:"required"`
	Body        []byte `json:"-"`
}

type UploadURLInput struct {
	SessionID   string `json:"sessionId" validate:"required"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType" validate:"required"`
}

type ConfirmInput struct {
	SessionID string `json:"sessionId" validate:"required"`
	ObjectKey string `json:"objectKey" validate:"required"`
	ImageURL  string `json:"imageUrl" validate:"required"`
}

// AnalysisResult is what an analysis request reports back.
type AnalysisResult struct {
	ImageID           string
	Status            domain.AnalysisStatus
	Damages           []domain.Damage
	ProcessedImageURL string
}

func NewImageService(images ImageStore, objects ObjectStore, detector Detector) (*ImageService, error) {
	if images == nil {
		return nil, errors.New("usecase: image store must not be nil")
	}
	if objects == nil {
		return nil, errors.New("usecase: object store must not be nil")
	}
	if detector == nil {
		return nil, errors.New("usecase: detector must not be nil")
	}
	return &ImageService{images: images, objects: objects, detector: detector}, nil
}

// Upload stores the bytes and records a pending image.
func (s *ImageService) Upload(ctx context.Context, in UploadInput) (domain.Image, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if err := validateInput(in); err != nil {
		return domain.Image{}, err
	}
	if len(in.Body) == 0 {
		return domain.Image{}, Validation("Image file is required")
	}
	if !isImageType(in.ContentType) {
		return domain.Image{}, Validation("Only image files are allowed")
	}
	stored, err := s.objects.Upload(ctx, in.SessionID, in.Filename, in.ContentType, in.Body)
	if err != nil {
		return domain.Image{}, newError(ErrorUpstream, "Failed to upload image", err)
	}
	return s.ConfirmUpload(ctx, ConfirmInput{
		SessionID: in.SessionID,
		ObjectKey: stored.ObjectKey,
		ImageURL:  stored.ImageURL,
	})
}

// RequestUploadURL issues a signed PUT for a client-side upload; ConfirmUpload
// completes the flow.
func (s *ImageService) RequestUploadURL(ctx context.Context, in UploadURLInput) (objectstore.PresignedUpload, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if err := validateInput(in); err != nil {
		return objectstore.PresignedUpload{}, err
	}
	if !isImageType(in.ContentType) {
		return objectstore.PresignedUpload{}, Validation("Only image files are allowed")
	}
	up, err := s.objects.PresignUpload(ctx, in.SessionID, in.Filename, in.ContentType)
	if err != nil {
		return objectstore.PresignedUpload{}, newError(ErrorUpstream, "Failed to create upload URL", err)
	}
	return up, nil
}

// ConfirmUpload records a pending image for an object already in the bucket.
// The object itself is not checked.
func (s *ImageService) ConfirmUpload(ctx context.Context, in ConfirmInput) (domain.Image, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.ObjectKey = strings.TrimSpace(in.ObjectKey)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := validateInput(in); err != nil {
		return domain.Image{}, err
	}
	img := domain.Image{
		ImageID:   newUUID(),
		SessionID: in.SessionID,
		ImageURL:  in.ImageURL,
		ObjectKey: in.ObjectKey,
		Analysis:  domain.NewPendingAnalysis(),
		CreatedAt: domain.Millis(now()),
	}
	if err := s.images.PutImage(ctx, img); err != nil {
		return domain.Image{}, newError(ErrorInternal, "Failed to save image", err)
	}
	logging.Ctx(ctx).Info().Str("image_id", img.ImageID).Str("session_id", img.SessionID).Msg("image recorded")
	return img, nil
}

// Analyze runs the detector once for a pending image. Any other status is
// returned as stored without calling the detector. The pending to processing
// step is a guarded write, so concurrent callers see each other's claim.
func (s *ImageService) Analyze(ctx context.Context, imageID string) (AnalysisResult, error) {
	id := strings.TrimSpace(imageID)
	if id == "" {
		return AnalysisResult{}, Validation("Image ID is required")
	}
	img, err := s.images.GetImage(ctx, id)
	if err != nil {
		return AnalysisResult{}, imageLookupError(err)
	}
	if img.Analysis.Status != domain.StatusPending {
		return resultOf(img), nil
	}

	claimed, err := s.images.UpdateImageAnalysis(ctx, repository.AnalysisUpdate{
		ImageID:  id,
		Expected: domain.StatusPending,
		Analysis: domain.DamageAnalysis{Status: domain.StatusProcessing, Damages: []domain.Damage{}},
	})
	if errors.Is(err, repository.ErrConditionFailed) {
		logging.Ctx(ctx).Info().Str("image_id", id).Msg("analysis already claimed")
		return s.current(ctx, id)
	}
	if err != nil {
		return AnalysisResult{}, newError(ErrorInternal, "Failed to start analysis", err)
	}
	metrics.RecordTransition(string(domain.StatusProcessing))

	// Once claimed the record must leave processing even if the caller goes away.
	return s.runDetection(context.WithoutCancel(ctx), claimed)
}

func (s *ImageService) runDetection(ctx context.Context, img domain.Image) (AnalysisResult, error) {
	log := logging.Ctx(ctx).With().Str("image_id", img.ImageID).Logger()

	if img.ObjectKey == "" {
		return AnalysisResult{}, s.fail(ctx, img.ImageID, newError(ErrorUpstream, "Image has no stored object", nil))
	}
	obj, err := s.objects.Download(ctx, img.ObjectKey)
	if err != nil {
		return AnalysisResult{}, s.fail(ctx, img.ImageID, newError(ErrorUpstream, "Failed to read image from storage", err))
	}

	det, err := s.detector.Detect(ctx, obj.Body, contentTypeOf(obj.ContentType, img.ObjectKey))
	if err != nil {
		return AnalysisResult{}, s.fail(ctx, img.ImageID, newError(ErrorUpstream, detectorReason(err), err))
	}

	done, err := s.images.UpdateImageAnalysis(ctx, repository.AnalysisUpdate{
		ImageID:  img.ImageID,
		Expected: domain.StatusProcessing,
		Analysis: domain.DamageAnalysis{
			Status:      domain.StatusCompleted,
			Damages:     damagesFrom(det),
			ProcessedAt: domain.Millis(now()),
		},
		ProcessedImageURL: det.ProcessedImageURL,
	})
	if errors.Is(err, repository.ErrConditionFailed) {
		log.Warn().Msg("analysis result discarded, record moved on")
		return s.current(ctx, img.ImageID)
	}
	if err != nil {
		return AnalysisResult{}, s.fail(ctx, img.ImageID, newError(ErrorInternal, "Failed to save analysis", err))
	}
	metrics.RecordTransition(string(domain.StatusCompleted))
	log.Info().Int("damages", len(done.Analysis.Damages)).Msg("analysis completed")
	return resultOf(done), nil
}

// fail records the failed state and returns cause. A failed write is logged
// only; cause is what the caller needs to see.
func (s *ImageService) fail(ctx context.Context, imageID string, cause *Error) error {
	log := logging.Ctx(ctx)
	_, err := s.images.UpdateImageAnalysis(ctx, repository.AnalysisUpdate{
		ImageID:  imageID,
		Expected: domain.StatusProcessing,
		Analysis: domain.DamageAnalysis{Status: domain.StatusFailed, Damages: []domain.Damage{}},
	})
	if err != nil {
		log.Error().Err(err).Str("image_id", imageID).Msg("failed to record analysis failure")
	} else {
		metrics.RecordTransition(string(domain.StatusFailed))
	}
	log.Warn().Err(cause.Err).Str("image_id", imageID).Str("reason", cause.Reason).Msg("analysis failed")
	return cause
}

func (s *ImageService) current(ctx context.Context, imageID string) (AnalysisResult, error) {
	img, err := s.images.GetImage(ctx, imageID)
	if err != nil {
		return AnalysisResult{}, imageLookupError(err)
	}
	return resultOf(img), nil
}

func (s *ImageService) Get(ctx context.Context, imageID string) (domain.Image, error) {
	id := strings.TrimSpace(imageID)
	if id == "" {
		return domain.Image{}, Validation("Image ID is required")
	}
	img, err := s.images.GetImage(ctx, id)
	if err != nil {
		return domain.Image{}, imageLookupError(err)
	}
	return img, nil
}

// ListBySession returns the session's images, newest first.
func (s *ImageService) ListBySession(ctx context.Context, sessionID string) ([]domain.Image, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, Validation("Session ID is required")
	}
	images, err := s.images.ListImagesBySession(ctx, id)
	if err != nil {
		return nil, newError(ErrorInternal, "Failed to retrieve images", err)
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CreatedAt > images[j].CreatedAt
	})
	return images, nil
}

// DownloadURL signs a time-limited GET for the stored original.
func (s *ImageService) DownloadURL(ctx context.Context, imageID string) (string, error) {
	img, err := s.Get(ctx, imageID)
	if err != nil {
		return "", err
	}
	if img.ObjectKey == "" {
		return "", newError(ErrorNotFound, "Image has no stored object", nil)
	}
	u, err := s.objects.PresignDownload(ctx, img.ObjectKey)
	if err != nil {
		return "", newError(ErrorUpstream, "Failed to create download URL", err)
	}
	return u, nil
}

// Delete removes the stored object and then the record.
func (s *ImageService) Delete(ctx context.Context, imageID string) error {
	img, err := s.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if img.ObjectKey != "" {
		if err := s.objects.Delete(ctx, img.ObjectKey); err != nil {
			return newError(ErrorUpstream, "Failed to delete stored image", err)
		}
	}
	if err := s.images.DeleteImage(ctx, img.ImageID); err != nil {
		return newError(ErrorInternal, "Failed to delete image", err)
	}
	logging.Ctx(ctx).Info().Str("image_id", img.ImageID).Msg("image deleted")
	return nil
}

// damagesFrom caps the detector answer at one damage per image.
func damagesFrom(det inference.Detection) []domain.Damage {
	if !det.HasDamage {
		return []domain.Damage{}
	}
	d := domain.Damage{
		Type:       damageTypeCrack,
		Severity:   severityFor(det.Confidence),
		Location:   damageLocation,
		Confidence: det.Confidence,
	}
	if len(det.BoundingBoxes) > 0 {
		b := det.BoundingBoxes[0]
		d.BoundingBox = &b
	}
	return []domain.Damage{d}
}

func severityFor(confidence float64) string {
	switch {
	case confidence > highSeverityAbove:
		return severityHigh
	case confidence > mediumSeverityAbove:
		return severityMedium
	default:
		return severityLow
	}
}

func detectorReason(err error) string {
	var (
		unreachable *inference.UnreachableError
		malformed   *inference.MalformedResponseError
		credentials *inference.CredentialsError
	)
	if status, ok := upstreamStatusCode(err); ok {
		return fmt.Sprintf("AI server error: %d", status)
	}
	switch {
	case errors.As(err, &unreachable):
		return "AI server is not reachable"
	case errors.As(err, &malformed):
		return "Invalid response from AI server"
	case errors.As(err, &credentials):
		return "AI server credentials unavailable"
	default:
		return "Failed to analyze image with AI"
	}
}

func resultOf(img domain.Image) AnalysisResult {
	damages := img.Analysis.Damages
	if damages == nil {
		damages = []domain.Damage{}
	}
	return AnalysisResult{
		ImageID:           img.ImageID,
		Status:            img.Analysis.Status,
		Damages:           damages,
		ProcessedImageURL: img.ProcessedImageURL,
	}
}

func imageLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(ErrorNotFound, "Image not found", err)
	}
	return newError(ErrorInternal, "Failed to retrieve image", err)
}

func isImageType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mt, "image/")
}

func contentTypeOf(stored, key string) string {
	if isImageType(stored) {
		return stored
	}
	if t := mime.TypeByExtension(path.Ext(key)); isImageType(t) {
		return t
	}
	return "image/jpeg"
}
