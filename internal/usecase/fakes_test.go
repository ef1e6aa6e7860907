package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/integrations/inference"
	"fairstay-backend/internal/integrations/objectstore"
	"fairstay-backend/internal/repository"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// stubClock pins now and makes newUUID return id-1, id-2, ...
func stubClock(t *testing.T) {
	t.Helper()
	origNow, origUUID := now, newUUID
	n := 0
	now = func() time.Time { return fixedNow }
	newUUID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	t.Cleanup(func() {
		now = origNow
		newUUID = origUUID
	})
}

// ---------------------------------------------------------------------------
// image store
// ---------------------------------------------------------------------------

type fakeImages struct {
	items   map[string]domain.Image
	updates []repository.AnalysisUpdate
	puts    int

	putErr    error
	getErr    error
	listErr   error
	updateErr error
	// beforeUpdate runs ahead of the conditional check, e.g. to simulate a racing writer.
	beforeUpdate func(f *fakeImages, u repository.AnalysisUpdate)
}

func newFakeImages(imgs ...domain.Image) *fakeImages {
	f := &fakeImages{items: map[string]domain.Image{}}
	for _, img := range imgs {
		f.items[img.ImageID] = img
	}
	return f
}

func (f *fakeImages) PutImage(_ context.Context, img domain.Image) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.items[img.ImageID] = img
	return nil
}

func (f *fakeImages) GetImage(_ context.Context, id string) (domain.Image, error) {
	if f.getErr != nil {
		return domain.Image{}, f.getErr
	}
	img, ok := f.items[id]
	if !ok {
		return domain.Image{}, repository.ErrNotFound
	}
	return img, nil
}

func (f *fakeImages) ListImagesBySession(_ context.Context, sessionID string) ([]domain.Image, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Image
	for _, img := range f.items {
		if img.SessionID == sessionID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeImages) UpdateImageAnalysis(_ context.Context, u repository.AnalysisUpdate) (domain.Image, error) {
	f.updates = append(f.updates, u)
	if f.beforeUpdate != nil {
		f.beforeUpdate(f, u)
	}
	if f.updateErr != nil {
		return domain.Image{}, f.updateErr
	}
	img, ok := f.items[u.ImageID]
	if !ok || img.Analysis.Status != u.Expected {
		return domain.Image{}, repository.ErrConditionFailed
	}
	img.Analysis = u.Analysis
	if u.ProcessedImageURL != "" {
		img.ProcessedImageURL = u.ProcessedImageURL
	}
	f.items[u.ImageID] = img
	return img, nil
}

func (f *fakeImages) DeleteImage(_ context.Context, id string) error {
	delete(f.items, id)
	return nil
}

// ---------------------------------------------------------------------------
// object store
// ---------------------------------------------------------------------------

type fakeObjects struct {
	body        []byte
	contentType string

	uploadErr   error
	downloadErr error
	presignErr  error

	uploads   int
	downloads []string
	deleted   []string
}

func (f *fakeObjects) Upload(_ context.Context, sessionID, filename, _ string, _ []byte) (objectstore.Stored, error) {
	f.uploads++
	if f.uploadErr != nil {
		return objectstore.Stored{}, f.uploadErr
	}
	key := sessionID + "/obj-" + filename
	return objectstore.Stored{ObjectKey: key, ImageURL: "https://bucket.example/" + key}, nil
}

func (f *fakeObjects) Download(_ context.Context, key string) (objectstore.Object, error) {
	f.downloads = append(f.downloads, key)
	if f.downloadErr != nil {
		return objectstore.Object{}, f.downloadErr
	}
	return objectstore.Object{Body: f.body, ContentType: f.contentType}, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjects) PresignUpload(_ context.Context, sessionID, filename, _ string) (objectstore.PresignedUpload, error) {
	if f.presignErr != nil {
		return objectstore.PresignedUpload{}, f.presignErr
	}
	key := sessionID + "/obj-" + filename
	return objectstore.PresignedUpload{UploadURL: "https://signed.example/put/" + key, ObjectKey: key, ImageURL: "https://bucket.example/" + key}, nil
}

func (f *fakeObjects) PresignDownload(_ context.Context, key string) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://signed.example/get/" + key, nil
}

// ---------------------------------------------------------------------------
// detector
// ---------------------------------------------------------------------------

type fakeDetector struct {
	det   inference.Detection
	err   error
	calls int

	gotBody        []byte
	gotContentType string
	ctxErr         error
}

func (f *fakeDetector) Detect(ctx context.Context, image []byte, contentType string) (inference.Detection, error) {
	f.calls++
	f.gotBody = image
	f.gotContentType = contentType
	f.ctxErr = ctx.Err()
	return f.det, f.err
}

// ---------------------------------------------------------------------------
// session store
// ---------------------------------------------------------------------------

type fakeSessions struct {
	items    map[string]domain.Session
	putErr   error
	touched  []string
	deleted  []string
	touchErr error
}

func newFakeSessions(ss ...domain.Session) *fakeSessions {
	f := &fakeSessions{items: map[string]domain.Session{}}
	for _, s := range ss {
		f.items[s.SessionID] = s
	}
	return f
}

func (f *fakeSessions) PutSession(_ context.Context, s domain.Session) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.items[s.SessionID] = s
	return nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string, at time.Time) (domain.Session, error) {
	s, ok := f.items[id]
	if !ok || s.Expired(at) {
		return domain.Session{}, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) TouchSession(_ context.Context, id string, at time.Time) (domain.Session, error) {
	f.touched = append(f.touched, id)
	if f.touchErr != nil {
		return domain.Session{}, f.touchErr
	}
	s, ok := f.items[id]
	if !ok {
		return domain.Session{}, repository.ErrNotFound
	}
	s.LastActivity = domain.Millis(at)
	s.TTL = domain.ExpiryFrom(at)
	f.items[id] = s
	return s, nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.items, id)
	return nil
}

// ---------------------------------------------------------------------------
// survey store
// ---------------------------------------------------------------------------

type fakeSurveys struct {
	items  []domain.SurveyResponse
	putErr error
	err    error
}

func (f *fakeSurveys) PutSurveyResponse(_ context.Context, r domain.SurveyResponse) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.items = append(f.items, r)
	return nil
}

func (f *fakeSurveys) ListSurveyResponses(_ context.Context) ([]domain.SurveyResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.SurveyResponse(nil), f.items...), nil
}

func (f *fakeSurveys) ListSurveyResponsesBySession(_ context.Context, id string) ([]domain.SurveyResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.SurveyResponse
	for _, r := range f.items {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

// requireCode asserts err is a *Error with the given code.
func requireCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *usecase.Error with code %s, got %T: %v", code, err, err)
	}
	if ue.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, ue.Code, ue.Reason)
	}
	return ue
}
