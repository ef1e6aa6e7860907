package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/integrations/inference"
	"fairstay-backend/internal/repository"
)

func pendingImage(id string) domain.Image {
	return domain.Image{
		ImageID:   id,
		SessionID: "s-1",
		ImageURL:  "https://bucket.example/s-1/a.jpg",
		ObjectKey: "s-1/a.jpg",
		Analysis:  domain.NewPendingAnalysis(),
		CreatedAt: 1000,
	}
}

type imageFixture struct {
	svc      *ImageService
	images   *fakeImages
	objects  *fakeObjects
	detector *fakeDetector
}

func newImageFixture(t *testing.T, imgs ...domain.Image) imageFixture {
	t.Helper()
	stubClock(t)
	f := imageFixture{
		images:   newFakeImages(imgs...),
		objects:  &fakeObjects{body: []byte("jpeg-bytes"), contentType: "image/jpeg"},
		detector: &fakeDetector{},
	}
	svc, err := NewImageService(f.images, f.objects, f.detector)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewImageService_NilDeps(t *testing.T) {
	_, err := NewImageService(nil, &fakeObjects{}, &fakeDetector{})
	require.ErrorContains(t, err, "image store")
	_, err = NewImageService(newFakeImages(), nil, &fakeDetector{})
	require.ErrorContains(t, err, "object store")
	_, err = NewImageService(newFakeImages(), &fakeObjects{}, nil)
	require.ErrorContains(t, err, "detector")
}

// ---------------------------------------------------------------------------
// Analyze
// ---------------------------------------------------------------------------

func TestAnalyze_CompletesWithHighSeverity(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.det = inference.Detection{HasDamage: true, Confidence: 0.85, ProcessedImageURL: "http://ai/out.jpg"}

	res, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)
	require.Len(t, res.Damages, 1)
	require.Equal(t, domain.Damage{Type: "crack", Severity: "high", Location: "detected", Confidence: 0.85}, res.Damages[0])
	require.Equal(t, "http://ai/out.jpg", res.ProcessedImageURL)

	stored := f.images.items["img-1"]
	require.Equal(t, domain.StatusCompleted, stored.Analysis.Status)
	require.Equal(t, fixedNow.UnixMilli(), stored.Analysis.ProcessedAt)
	require.Equal(t, "http://ai/out.jpg", stored.ProcessedImageURL)

	require.Equal(t, 1, f.detector.calls)
	require.Equal(t, []byte("jpeg-bytes"), f.detector.gotBody)
	require.Equal(t, "image/jpeg", f.detector.gotContentType)
	require.Equal(t, []string{"s-1/a.jpg"}, f.objects.downloads)

	require.Len(t, f.images.updates, 2)
	require.Equal(t, domain.StatusPending, f.images.updates[0].Expected)
	require.Equal(t, domain.StatusProcessing, f.images.updates[0].Analysis.Status)
	require.Equal(t, domain.StatusProcessing, f.images.updates[1].Expected)
}

func TestAnalyze_SecondCallReturnsStoredResult(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.det = inference.Detection{HasDamage: true, Confidence: 0.6, ProcessedImageURL: "http://ai/out.jpg"}

	first, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)
	second, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, f.detector.calls)
}

func TestAnalyze_TransportErrorMarksFailed(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.err = &inference.UnreachableError{URL: "http://ai/detect-crack", Err: errors.New("connection refused")}

	_, err := f.svc.Analyze(context.Background(), "img-1")
	ue := requireCode(t, err, ErrorUpstream)
	require.Equal(t, "AI server is not reachable", ue.Reason)

	stored := f.images.items["img-1"]
	require.Equal(t, domain.StatusFailed, stored.Analysis.Status)
	require.Empty(t, stored.Analysis.Damages)
	require.NotNil(t, stored.Analysis.Damages)
}

func TestAnalyze_RejectedCarriesStatus(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.err = &inference.RejectedError{StatusCode: 503, URL: "http://ai/detect-crack"}

	_, err := f.svc.Analyze(context.Background(), "img-1")
	ue := requireCode(t, err, ErrorUpstream)
	require.Equal(t, "AI server error: 503", ue.Reason)
	require.Equal(t, domain.StatusFailed, f.images.items["img-1"].Analysis.Status)
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.err = &inference.MalformedResponseError{Reason: "missing image_url"}

	_, err := f.svc.Analyze(context.Background(), "img-1")
	ue := requireCode(t, err, ErrorUpstream)
	require.Equal(t, "Invalid response from AI server", ue.Reason)
}

func TestAnalyze_StorageFailureMarksFailed(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.objects.downloadErr = errors.New("NoSuchKey")

	_, err := f.svc.Analyze(context.Background(), "img-1")
	requireCode(t, err, ErrorUpstream)
	require.Equal(t, 0, f.detector.calls)
	require.Equal(t, domain.StatusFailed, f.images.items["img-1"].Analysis.Status)
}

func TestAnalyze_CompletionWriteFailureMarksFailed(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.det = inference.Detection{HasDamage: true, Confidence: 0.9, ProcessedImageURL: "http://ai/out.jpg"}
	f.images.beforeUpdate = func(fi *fakeImages, u repository.AnalysisUpdate) {
		fi.updateErr = nil
		if u.Analysis.Status == domain.StatusCompleted {
			fi.updateErr = errors.New("dynamodb: throttled")
		}
	}

	_, err := f.svc.Analyze(context.Background(), "img-1")
	ue := requireCode(t, err, ErrorInternal)
	require.Equal(t, "Failed to save analysis", ue.Reason)

	stored := f.images.items["img-1"]
	require.Equal(t, domain.StatusFailed, stored.Analysis.Status)
	require.Empty(t, stored.Analysis.Damages)
	require.Len(t, f.images.updates, 3)
	require.Equal(t, domain.StatusProcessing, f.images.updates[2].Expected)

	res, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, res.Status)
	require.Equal(t, 1, f.detector.calls)
}

func TestAnalyze_UnknownImage(t *testing.T) {
	f := newImageFixture(t)

	_, err := f.svc.Analyze(context.Background(), "missing")
	requireCode(t, err, ErrorNotFound)
	require.Equal(t, 0, f.detector.calls)
	require.Empty(t, f.images.updates)
}

func TestAnalyze_NonPendingIsReturnedAsStored(t *testing.T) {
	for _, status := range []domain.AnalysisStatus{domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed} {
		img := pendingImage("img-1")
		img.Analysis.Status = status
		f := newImageFixture(t, img)

		res, err := f.svc.Analyze(context.Background(), "img-1")
		require.NoError(t, err, status)
		require.Equal(t, status, res.Status)
		require.Equal(t, 0, f.detector.calls, status)
		require.Empty(t, f.images.updates, status)
	}
}

func TestAnalyze_LostClaimReturnsCurrentState(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.images.beforeUpdate = func(fi *fakeImages, u repository.AnalysisUpdate) {
		if u.Expected == domain.StatusPending {
			img := fi.items[u.ImageID]
			img.Analysis.Status = domain.StatusProcessing
			fi.items[u.ImageID] = img
		}
	}

	res, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, res.Status)
	require.Equal(t, 0, f.detector.calls)
}

func TestAnalyze_NoDamage(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.det = inference.Detection{HasDamage: false, ProcessedImageURL: "http://ai/out.jpg"}

	res, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)
	require.Empty(t, res.Damages)
	require.NotNil(t, res.Damages)
}

func TestAnalyze_KeepsFirstBoundingBox(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.det = inference.Detection{
		HasDamage:  true,
		Confidence: 0.3,
		BoundingBoxes: []domain.BoundingBox{
			{X: 1, Y: 2, Width: 3, Height: 4},
			{X: 9, Y: 9, Width: 9, Height: 9},
		},
	}

	res, err := f.svc.Analyze(context.Background(), "img-1")
	require.NoError(t, err)
	require.Len(t, res.Damages, 1)
	require.Equal(t, "low", res.Damages[0].Severity)
	require.Equal(t, &domain.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}, res.Damages[0].BoundingBox)
}

func TestAnalyze_IgnoresCallerCancellationAfterClaim(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))
	f.detector.det = inference.Detection{HasDamage: true, Confidence: 0.9, ProcessedImageURL: "http://ai/out.jpg"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Analyze(ctx, "img-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, res.Status)
	require.NoError(t, f.detector.ctxErr)
}

func TestAnalyze_EmptyID(t *testing.T) {
	f := newImageFixture(t)
	_, err := f.svc.Analyze(context.Background(), " ")
	requireCode(t, err, ErrorValidation)
}

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       string
	}{
		{0.95, "high"},
		{0.81, "high"},
		{0.8, "medium"},
		{0.51, "medium"},
		{0.5, "low"},
		{0, "low"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, severityFor(tc.confidence), "confidence=%v", tc.confidence)
	}
}

// ---------------------------------------------------------------------------
// uploads
// ---------------------------------------------------------------------------

func TestConfirmUpload_RecordsPendingImage(t *testing.T) {
	f := newImageFixture(t)

	img, err := f.svc.ConfirmUpload(context.Background(), ConfirmInput{
		SessionID: "s-1", ObjectKey: "s-1/a.jpg", ImageURL: "https://bucket.example/s-1/a.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, "id-1", img.ImageID)
	require.Equal(t, domain.StatusPending, img.Analysis.Status)
	require.Equal(t, []domain.Damage{}, img.Analysis.Damages)
	require.Equal(t, fixedNow.UnixMilli(), img.CreatedAt)
	require.Equal(t, 1, f.images.puts)
	require.Equal(t, img, f.images.items["id-1"])
}

func TestConfirmUpload_RequiresAllFields(t *testing.T) {
	f := newImageFixture(t)

	_, err := f.svc.ConfirmUpload(context.Background(), ConfirmInput{SessionID: "s-1", ImageURL: " "})
	ue := requireCode(t, err, ErrorValidation)
	require.Contains(t, ue.Reason, "objectKey is required")
	require.Contains(t, ue.Reason, "imageUrl is required")
	require.Equal(t, 0, f.images.puts)
}

func TestUpload_StoresThenRecords(t *testing.T) {
	f := newImageFixture(t)

	img, err := f.svc.Upload(context.Background(), UploadInput{
		SessionID: "s-1", Filename: "wall.png", ContentType: "image/png", Body: []byte("png"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.objects.uploads)
	require.Equal(t, "s-1/obj-wall.png", img.ObjectKey)
	require.Equal(t, "https://bucket.example/s-1/obj-wall.png", img.ImageURL)
}

func TestUpload_Validation(t *testing.T) {
	f := newImageFixture(t)

	_, err := f.svc.Upload(context.Background(), UploadInput{ContentType: "image/png", Body: []byte("x")})
	ue := requireCode(t, err, ErrorValidation)
	require.Equal(t, "sessionId is required", ue.Reason)

	_, err = f.svc.Upload(context.Background(), UploadInput{SessionID: "s-1", ContentType: "image/png"})
	ue = requireCode(t, err, ErrorValidation)
	require.Equal(t, "Image file is required", ue.Reason)

	_, err = f.svc.Upload(context.Background(), UploadInput{SessionID: "s-1", ContentType: "application/pdf", Body: []byte("x")})
	ue = requireCode(t, err, ErrorValidation)
	require.Equal(t, "Only image files are allowed", ue.Reason)

	require.Equal(t, 0, f.objects.uploads)
}

func TestUpload_StorageError(t *testing.T) {
	f := newImageFixture(t)
	f.objects.uploadErr = errors.New("AccessDenied")

	_, err := f.svc.Upload(context.Background(), UploadInput{SessionID: "s-1", ContentType: "image/jpeg", Body: []byte("x")})
	requireCode(t, err, ErrorUpstream)
	require.Equal(t, 0, f.images.puts)
}

func TestRequestUploadURL(t *testing.T) {
	f := newImageFixture(t)

	up, err := f.svc.RequestUploadURL(context.Background(), UploadURLInput{SessionID: "s-1", Filename: "a.jpg", ContentType: "image/jpeg"})
	require.NoError(t, err)
	require.Equal(t, "s-1/obj-a.jpg", up.ObjectKey)
	require.Equal(t, "https://signed.example/put/s-1/obj-a.jpg", up.UploadURL)

	_, err = f.svc.RequestUploadURL(context.Background(), UploadURLInput{SessionID: "s-1", ContentType: "text/plain"})
	requireCode(t, err, ErrorValidation)
}

// ---------------------------------------------------------------------------
// reads and maintenance
// ---------------------------------------------------------------------------

func TestListBySession_NewestFirst(t *testing.T) {
	a, b, c := pendingImage("a"), pendingImage("b"), pendingImage("c")
	a.CreatedAt, b.CreatedAt, c.CreatedAt = 100, 300, 200
	other := pendingImage("d")
	other.SessionID = "s-2"
	f := newImageFixture(t, a, b, c, other)

	imgs, err := f.svc.ListBySession(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, imgs, 3)
	require.Equal(t, []string{"b", "c", "a"}, []string{imgs[0].ImageID, imgs[1].ImageID, imgs[2].ImageID})
}

func TestGet_StoreFailureIsInternal(t *testing.T) {
	f := newImageFixture(t)
	f.images.getErr = errors.New("throttled")

	_, err := f.svc.Get(context.Background(), "img-1")
	requireCode(t, err, ErrorInternal)
}

func TestDownloadURL(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))

	u, err := f.svc.DownloadURL(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, "https://signed.example/get/s-1/a.jpg", u)

	_, err = f.svc.DownloadURL(context.Background(), "missing")
	requireCode(t, err, ErrorNotFound)
}

func TestDelete_RemovesObjectAndRecord(t *testing.T) {
	f := newImageFixture(t, pendingImage("img-1"))

	require.NoError(t, f.svc.Delete(context.Background(), "img-1"))
	require.Equal(t, []string{"s-1/a.jpg"}, f.objects.deleted)
	require.NotContains(t, f.images.items, "img-1")
}
