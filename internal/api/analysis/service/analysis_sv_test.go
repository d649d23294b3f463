package analysisService_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	"BillboardAnalyzer/internal/api/analysis"
	analysisRepository "BillboardAnalyzer/internal/api/analysis/repository"
	analysisService "BillboardAnalyzer/internal/api/analysis/service"
	"BillboardAnalyzer/internal/entity"
	"BillboardAnalyzer/pkg/analyzer"
	"BillboardAnalyzer/pkg/geofence"
	"BillboardAnalyzer/pkg/redis"
	"BillboardAnalyzer/pkg/utils"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

type fakeAnalyzer struct {
	analyzeFn func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error)
	calls     int
	lastImage image.Image
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
	f.calls++
	f.lastImage = img
	return f.analyzeFn(ctx, img, coord)
}

type fakeStore struct {
	created   []entity.Submission
	createErr error
	getFn     func(id string) (entity.Submission, error)
	lastLimit int
}

func (f *fakeStore) CreateSubmission(c context.Context, submission entity.Submission) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, submission)
	return nil
}

func (f *fakeStore) GetSubmissionByID(c context.Context, id string) (entity.Submission, error) {
	return f.getFn(id)
}

func (f *fakeStore) ListSubmissions(c context.Context, limit int) ([]entity.Submission, error) {
	f.lastLimit = limit
	return append([]entity.Submission(nil), f.created...), nil
}

type fakeRepository struct {
	store *fakeStore
}

func (f fakeRepository) NewClient(tx bool) (analysisRepository.Client, error) {
	return analysisRepository.Client{
		Submission: f.store,
		Commit:     func() error { return nil },
		Rollback:   func() error { return nil },
	}, nil
}

type fakeCache struct {
	entries map[string][]byte
	ttl     time.Duration
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) SetVerdict(ctx context.Context, key string, payload []byte, expiration time.Duration) error {
	f.entries[key] = payload
	f.ttl = expiration
	return nil
}

func (f *fakeCache) GetVerdict(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	payload, ok := f.entries[key]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	return payload, nil
}

func (f *fakeCache) Close() error { return nil }

type fakeStorage struct {
	uploadErr  error
	uploads    int
	presignErr error
	deleted    []string
}

func (f *fakeStorage) UploadImage(data []byte, fileName string, contentType string) (string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://bucket.s3.amazonaws.com/billboards/" + fileName, nil
}

func (f *fakeStorage) PresignUrl(fileUrl string) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return fileUrl + "?X-Amz-Signature=sig", nil
}

func (f *fakeStorage) DeleteFile(fileName string) error {
	f.deleted = append(f.deleted, fileName)
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(32, 24, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func authorizedResult(available bool) analyzer.Result {
	return analyzer.Result{
		Verdict:        analyzer.Verdict{IsAuthorized: true, Reason: "Billboard is located in an authorized commercial zone."},
		State:          analyzer.StateAuthorized,
		Detections:     2,
		ModelAvailable: available,
	}
}

func commercialInput(t *testing.T) analysis.AnalyzeInput {
	return analysis.AnalyzeInput{
		Image:     jpegBytes(t),
		Filename:  "billboard.jpg",
		Latitude:  9.9252,
		Longitude: 78.1198,
	}
}

func TestAnalyze_ReturnsVerdictAndRecordsSubmission(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		if coord.Latitude != 9.9252 || coord.Longitude != 78.1198 {
			t.Errorf("unexpected coordinate %+v", coord)
		}
		return authorizedResult(true), nil
	}}
	store := &fakeStore{}
	storage := &fakeStorage{}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: store},
		Storage:    storage,
		Utils:      utils.New(),
	})

	resp, err := svc.Analyze(context.Background(), commercialInput(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !resp.IsAuthorized || resp.Reason != "Billboard is located in an authorized commercial zone." {
		t.Fatalf("unexpected response %+v", resp)
	}
	if fa.lastImage == nil {
		t.Fatal("expected decoded image to reach the analyzer")
	}
	if b := fa.lastImage.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("decoded bounds = %v", b)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one submission, got %d", len(store.created))
	}
	got := store.created[0]
	if resp.SubmissionID == "" || got.ID != resp.SubmissionID {
		t.Fatalf("submission id mismatch: response %q row %q", resp.SubmissionID, got.ID)
	}
	if got.State != string(analyzer.StateAuthorized) || got.Detections != 2 || got.ImageURL == "" {
		t.Fatalf("unexpected submission row %+v", got)
	}
	if storage.uploads != 1 {
		t.Fatalf("expected one upload, got %d", storage.uploads)
	}
}

func TestAnalyze_CacheHitSkipsAnalyzer(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return authorizedResult(true), nil
	}}
	cache := newFakeCache()
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Cache:      cache,
		CacheTTL:   time.Minute,
	})

	input := commercialInput(t)
	first, err := svc.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := svc.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	if fa.calls != 1 {
		t.Fatalf("expected analyzer to run once, ran %d times", fa.calls)
	}
	if first != second {
		t.Fatalf("cached verdict differs: %+v vs %+v", first, second)
	}
	if cache.ttl != time.Minute {
		t.Fatalf("ttl = %v", cache.ttl)
	}

	input.Latitude = 9.94
	if _, err := svc.Analyze(context.Background(), input); err != nil {
		t.Fatalf("third Analyze: %v", err)
	}
	if fa.calls != 2 {
		t.Fatalf("different coordinate must miss the cache, analyzer calls = %d", fa.calls)
	}
}

func TestAnalyze_ModelUnavailableIsNotCached(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return analyzer.Result{
			Verdict: analyzer.Verdict{IsAuthorized: false, Reason: analyzer.ReasonNoObject},
			State:   analyzer.StateNoObject,
		}, nil
	}}
	cache := newFakeCache()
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Cache:      cache,
	})

	resp, err := svc.Analyze(context.Background(), commercialInput(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.IsAuthorized || resp.Reason != analyzer.ReasonNoObject {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(cache.entries) != 0 {
		t.Fatalf("verdict without a model must not be cached, got %d entries", len(cache.entries))
	}
}

func TestAnalyze_CacheErrorFallsThrough(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return authorizedResult(true), nil
	}}
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Cache:      cache,
	})

	if _, err := svc.Analyze(context.Background(), commercialInput(t)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if fa.calls != 1 {
		t.Fatalf("analyzer calls = %d", fa.calls)
	}
}

func TestAnalyze_AnalyzerFaultIsReturned(t *testing.T) {
	boom := errors.New("session run failed")
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return analyzer.Result{}, boom
	}}
	store := &fakeStore{}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: store},
	})

	_, err := svc.Analyze(context.Background(), commercialInput(t))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("failed analysis must not be recorded")
	}
}

func TestAnalyze_PersistenceFailureKeepsVerdict(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return authorizedResult(true), nil
	}}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: &fakeStore{createErr: errors.New("db down")}},
		Storage:    &fakeStorage{uploadErr: errors.New("s3 down")},
	})

	resp, err := svc.Analyze(context.Background(), commercialInput(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !resp.IsAuthorized || resp.SubmissionID != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAnalyze_FailedInsertRemovesArchivedImage(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return authorizedResult(true), nil
	}}
	storage := &fakeStorage{}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: &fakeStore{createErr: errors.New("db down")}},
		Storage:    storage,
	})

	resp, err := svc.Analyze(context.Background(), commercialInput(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !resp.IsAuthorized || resp.SubmissionID != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if storage.uploads != 1 || len(storage.deleted) != 1 {
		t.Fatalf("uploads=%d deleted=%v", storage.uploads, storage.deleted)
	}
	if storage.deleted[0] != "https://bucket.s3.amazonaws.com/billboards/billboard.jpg" {
		t.Fatalf("deleted %q", storage.deleted[0])
	}
}

func TestAnalyze_StoredSubmissionKeepsArchivedImage(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return authorizedResult(true), nil
	}}
	storage := &fakeStorage{}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: &fakeStore{}},
		Storage:    storage,
	})

	if _, err := svc.Analyze(context.Background(), commercialInput(t)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(storage.deleted) != 0 {
		t.Fatalf("stored submission lost its image: %v", storage.deleted)
	}
}

func TestAnalyze_UndecodableImageReachesAnalyzerAsNil(t *testing.T) {
	fa := &fakeAnalyzer{analyzeFn: func(ctx context.Context, img image.Image, coord geofence.Coordinate) (analyzer.Result, error) {
		return analyzer.Result{
			Verdict:        analyzer.Verdict{Reason: analyzer.ReasonNoObject},
			State:          analyzer.StateNoObject,
			ModelAvailable: true,
		}, nil
	}}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Analyzer:   fa,
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
	})

	input := commercialInput(t)
	input.Image = []byte("definitely not a jpeg")
	resp, err := svc.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if fa.calls != 1 || fa.lastImage != nil {
		t.Fatalf("expected a single call with a nil image, calls=%d image=%v", fa.calls, fa.lastImage)
	}
	if resp.IsAuthorized {
		t.Fatal("undecodable image must not be authorized")
	}
}

func TestSubmissions_WithoutRepository(t *testing.T) {
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
	})

	if _, err := svc.GetSubmission(context.Background(), "01H"); !errors.Is(err, analysis.ErrStorageUnavailable) {
		t.Fatalf("GetSubmission err = %v", err)
	}
	if _, err := svc.ListSubmissions(context.Background(), 5); !errors.Is(err, analysis.ErrStorageUnavailable) {
		t.Fatalf("ListSubmissions err = %v", err)
	}
}

func TestGetSubmission_NotFound(t *testing.T) {
	store := &fakeStore{getFn: func(id string) (entity.Submission, error) {
		return entity.Submission{}, analysis.ErrSubmissionNotFound
	}}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: store},
	})

	if _, err := svc.GetSubmission(context.Background(), "missing"); !errors.Is(err, analysis.ErrSubmissionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestGetSubmission_PresignsImage(t *testing.T) {
	stored := entity.Submission{
		ID:       "01HZX3K8Q9J6V2M4N7P5R8T1W3",
		ImageURL: "https://bucket.s3.amazonaws.com/billboards/2026/10/19/1-billboard.jpg",
	}
	store := &fakeStore{getFn: func(id string) (entity.Submission, error) {
		return stored, nil
	}}

	tests := []struct {
		name    string
		storage *fakeStorage
		want    string
	}{
		{"signed", &fakeStorage{}, stored.ImageURL + "?X-Amz-Signature=sig"},
		{"presign fails", &fakeStorage{presignErr: errors.New("no such key")}, ""},
		{"no storage", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := analysisService.Dependencies{
				Classifier: geofence.NewClassifier(geofence.DefaultZones()),
				Repository: fakeRepository{store: store},
			}
			if tt.storage != nil {
				deps.Storage = tt.storage
			}
			svc := analysisService.NewAnalysisService(quietLogger(), deps)

			got, err := svc.GetSubmission(context.Background(), stored.ID)
			if err != nil {
				t.Fatalf("GetSubmission: %v", err)
			}
			if got.ImageURL != tt.want {
				t.Fatalf("image url = %q, want %q", got.ImageURL, tt.want)
			}
		})
	}
}

func TestListSubmissions_PresignsImages(t *testing.T) {
	store := &fakeStore{created: []entity.Submission{
		{ID: "a", ImageURL: "https://bucket.s3.amazonaws.com/billboards/a.jpg"},
		{ID: "b"},
	}}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: store},
		Storage:    &fakeStorage{},
	})

	got, err := svc.ListSubmissions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if got[0].ImageURL != "https://bucket.s3.amazonaws.com/billboards/a.jpg?X-Amz-Signature=sig" {
		t.Fatalf("first image url = %q", got[0].ImageURL)
	}
	if got[1].ImageURL != "" {
		t.Fatalf("submission without an image got %q", got[1].ImageURL)
	}
}

func TestListSubmissions_ClampsLimit(t *testing.T) {
	store := &fakeStore{}
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
		Repository: fakeRepository{store: store},
	})

	tests := []struct {
		requested int
		want      int
	}{
		{0, analysisService.DefaultListLimit},
		{-3, analysisService.DefaultListLimit},
		{7, 7},
		{500, analysisService.MaxListLimit},
	}

	for _, tt := range tests {
		if _, err := svc.ListSubmissions(context.Background(), tt.requested); err != nil {
			t.Fatalf("ListSubmissions(%d): %v", tt.requested, err)
		}
		if store.lastLimit != tt.want {
			t.Errorf("ListSubmissions(%d) used limit %d, want %d", tt.requested, store.lastLimit, tt.want)
		}
	}
}

func TestZones_ReturnsConfiguredOrder(t *testing.T) {
	svc := analysisService.NewAnalysisService(quietLogger(), analysisService.Dependencies{
		Classifier: geofence.NewClassifier(geofence.DefaultZones()),
	})

	zones := svc.Zones()
	if len(zones) != 2 || zones[0].Name != "commercial" || zones[1].Name != "residential" {
		t.Fatalf("unexpected zones %+v", zones)
	}
}

func TestCacheTTLFromEnv(t *testing.T) {
	t.Setenv("VERDICT_CACHE_TTL", "")
	if got := analysisService.CacheTTLFromEnv(); got != analysisService.DefaultCacheTTL {
		t.Fatalf("default ttl = %v", got)
	}

	t.Setenv("VERDICT_CACHE_TTL", "90s")
	if got := analysisService.CacheTTLFromEnv(); got != 90*time.Second {
		t.Fatalf("ttl = %v", got)
	}

	t.Setenv("VERDICT_CACHE_TTL", "soon")
	if got := analysisService.CacheTTLFromEnv(); got != analysisService.DefaultCacheTTL {
		t.Fatalf("invalid ttl fell back to %v", got)
	}
}
