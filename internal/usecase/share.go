package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/report"
)

const shareTitle = "Property Damage Report"

type ImageReader interface {
	GetImage(ctx context.Context, imageID string) (domain.Image, error)
}

// RenderFunc draws the report for a completed image.
type RenderFunc func(img domain.Image, generatedAt time.Time) ([]byte, error)

type ShareService struct {
	images ImageReader
	render RenderFunc
	webURL string
}

type Report struct {
	PDF      string // base64
	Filename string
}

type ShareLink struct {
	WebURL       string `json:"webUrl"`
	MobileWebURL string `json:"mobileWebUrl"`
}

// ShareData is the payload the web client passes to the Kakao share SDK.
type ShareData struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	Link        ShareLink `json:"link"`
}

func NewShareService(images ImageReader, render RenderFunc, webURL string) (*ShareService, error) {
	if images == nil {
		return nil, errors.New("usecase: image reader must not be nil")
	}
	if render == nil {
		render = report.Render
	}
	webURL = strings.TrimRight(strings.TrimSpace(webURL), "/")
	if webURL == "" {
		return nil, errors.New("usecase: web URL must not be empty")
	}
	return &ShareService{images: images, render: render, webURL: webURL}, nil
}

func (s *ShareService) GeneratePDF(ctx context.Context, imageID string) (Report, error) {
	img, err := s.completedImage(ctx, imageID)
	if err != nil {
		return Report{}, err
	}
	pdf, err := s.render(img, now())
	if errors.Is(err, report.ErrNotCompleted) {
		return Report{}, Validation("Image analysis not completed yet")
	}
	if err != nil {
		return Report{}, newError(ErrorInternal, "Failed to generate PDF", err)
	}
	return Report{
		PDF:      base64.StdEncoding.EncodeToString(pdf),
		Filename: fmt.Sprintf("damage_report_%s.pdf", img.ImageID),
	}, nil
}

func (s *ShareService) KakaoShare(ctx context.Context, imageID string) (ShareData, error) {
	img, err := s.completedImage(ctx, imageID)
	if err != nil {
		return ShareData{}, err
	}
	link := s.webURL + "/report/" + img.ImageID
	return ShareData{
		Title:       shareTitle,
		Description: fmt.Sprintf("%d damage(s) detected.", len(img.Analysis.Damages)),
		ImageURL:    img.ImageURL,
		Link:        ShareLink{WebURL: link, MobileWebURL: link},
	}, nil
}

func (s *ShareService) completedImage(ctx context.Context, imageID string) (domain.Image, error) {
	id := strings.TrimSpace(imageID)
	if id == "" {
		return domain.Image{}, Validation("Image ID is required")
	}
	img, err := s.images.GetImage(ctx, id)
	if err != nil {
		return domain.Image{}, imageLookupError(err)
	}
	if img.Analysis.Status != domain.StatusCompleted {
		return domain.Image{}, Validation("Image analysis not completed yet")
	}
	return img, nil
}
