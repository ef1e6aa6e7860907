package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fairstay-backend/internal/domain"
)

func completedImage(id string) domain.Image {
	img := pendingImage(id)
	img.Analysis = domain.DamageAnalysis{
		Status:      domain.StatusCompleted,
		Damages:     []domain.Damage{{Type: "crack", Severity: "high", Location: "detected", Confidence: 0.9}},
		ProcessedAt: 2000,
	}
	img.ProcessedImageURL = "http://ai/out.jpg"
	return img
}

func TestNewShareService_Args(t *testing.T) {
	_, err := NewShareService(nil, nil, "https://fairstay.app")
	require.Error(t, err)
	_, err = NewShareService(newFakeImages(), nil, " ")
	require.Error(t, err)
}

func TestGeneratePDF(t *testing.T) {
	stubClock(t)
	var gotAt time.Time
	render := func(img domain.Image, at time.Time) ([]byte, error) {
		gotAt = at
		return []byte("%PDF-" + img.ImageID), nil
	}
	svc, err := NewShareService(newFakeImages(completedImage("img-1")), render, "https://fairstay.app")
	require.NoError(t, err)

	rep, err := svc.GeneratePDF(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, "damage_report_img-1.pdf", rep.Filename)
	raw, err := base64.StdEncoding.DecodeString(rep.PDF)
	require.NoError(t, err)
	require.Equal(t, "%PDF-img-1", string(raw))
	require.Equal(t, fixedNow, gotAt)
}

func TestGeneratePDF_WithDefaultRenderer(t *testing.T) {
	stubClock(t)
	svc, err := NewShareService(newFakeImages(completedImage("img-1")), nil, "https://fairstay.app")
	require.NoError(t, err)

	rep, err := svc.GeneratePDF(context.Background(), "img-1")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(rep.PDF)
	require.NoError(t, err)
	require.Equal(t, "%PDF-", string(raw[:5]))
}

func TestGeneratePDF_RequiresCompletedAnalysis(t *testing.T) {
	stubClock(t)
	called := false
	render := func(domain.Image, time.Time) ([]byte, error) {
		called = true
		return nil, nil
	}
	svc, err := NewShareService(newFakeImages(pendingImage("img-1")), render, "https://fairstay.app")
	require.NoError(t, err)

	_, err = svc.GeneratePDF(context.Background(), "img-1")
	ue := requireCode(t, err, ErrorValidation)
	require.Equal(t, "Image analysis not completed yet", ue.Reason)
	require.False(t, called)

	_, err = svc.GeneratePDF(context.Background(), "missing")
	requireCode(t, err, ErrorNotFound)
}

func TestGeneratePDF_RenderFailure(t *testing.T) {
	stubClock(t)
	render := func(domain.Image, time.Time) ([]byte, error) { return nil, errors.New("font missing") }
	svc, err := NewShareService(newFakeImages(completedImage("img-1")), render, "https://fairstay.app")
	require.NoError(t, err)

	_, err = svc.GeneratePDF(context.Background(), "img-1")
	requireCode(t, err, ErrorInternal)
}

func TestKakaoShare(t *testing.T) {
	svc, err := NewShareService(newFakeImages(completedImage("img-1")), nil, "https://fairstay.app/")
	require.NoError(t, err)

	data, err := svc.KakaoShare(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, ShareData{
		Title:       "Property Damage Report",
		Description: "1 damage(s) detected.",
		ImageURL:    "https://bucket.example/s-1/a.jpg",
		Link: ShareLink{
			WebURL:       "https://fairstay.app/report/img-1",
			MobileWebURL: "https://fairstay.app/report/img-1",
		},
	}, data)
}

func TestKakaoShare_RequiresCompletedAnalysis(t *testing.T) {
	failed := pendingImage("img-1")
	failed.Analysis.Status = domain.StatusFailed
	svc, err := NewShareService(newFakeImages(failed), nil, "https://fairstay.app")
	require.NoError(t, err)

	_, err = svc.KakaoShare(context.Background(), "img-1")
	requireCode(t, err, ErrorValidation)
}
