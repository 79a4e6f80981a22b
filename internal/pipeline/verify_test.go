package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// fakeBlob records puts and can be told to fail.
type fakeBlob struct {
	err  error
	keys []string
}

func (f *fakeBlob) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://blobs.test/" + key, nil
}

// fakeClassifier returns a canned classification.
type fakeClassifier struct {
	result   model.Classification
	imageURL string
}

func (f *fakeClassifier) Classify(ctx context.Context, imageURL string) model.Classification {
	f.imageURL = imageURL
	return f.result
}

// fakeStore implements store.Store in memory with failure knobs for the
// writes the pipeline performs.
type fakeStore struct {
	scanErr     error
	trainingErr error
	auditErr    error

	scans    []model.ScanRecord
	training []model.TrainingImage
	audits   []model.AuditLogEntry
}

func (f *fakeStore) CreateScan(ctx context.Context, scan model.ScanRecord) (*model.ScanRecord, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	scan.ID = "scan-1"
	scan.CreatedAt = time.Now().UTC()
	f.scans = append(f.scans, scan)
	return &scan, nil
}

func (f *fakeStore) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	return nil, nil
}

func (f *fakeStore) UpsertFeedback(ctx context.Context, fb model.Feedback) error { return nil }
func (f *fakeStore) GetFeedback(ctx context.Context, scanID string) (*model.Feedback, error) {
	return nil, nil
}

func (f *fakeStore) CreateTrainingImage(ctx context.Context, img model.TrainingImage) (*model.TrainingImage, error) {
	if f.trainingErr != nil {
		return nil, f.trainingErr
	}
	img.ID = "training-1"
	img.CreatedAt = time.Now().UTC()
	f.training = append(f.training, img)
	return &img, nil
}

func (f *fakeStore) ListTrainingImages(ctx context.Context, filter store.TrainingFilter) ([]model.TrainingImage, error) {
	return f.training, nil
}

func (f *fakeStore) AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeStore) CountScans(ctx context.Context) (int, error) { return len(f.scans), nil }
func (f *fakeStore) CountScansSince(ctx context.Context, since time.Time) (int, error) {
	return 0, nil
}
func (f *fakeStore) CountScansByVerdict(ctx context.Context, verdict model.Verdict) (int, error) {
	return 0, nil
}
func (f *fakeStore) CountDegradedScansSince(ctx context.Context, since time.Time) (int, error) {
	return 0, nil
}
func (f *fakeStore) TrainingStats(ctx context.Context) (*model.TrainingStats, error) {
	return &model.TrainingStats{}, nil
}
func (f *fakeStore) MonthlyScanCounts(ctx context.Context, since time.Time) ([]store.MonthBucket, error) {
	return nil, nil
}
func (f *fakeStore) ScanLocations(ctx context.Context, limit int) ([]model.Geolocation, error) {
	return nil, nil
}
func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Ping(ctx context.Context) error    { return nil }
func (f *fakeStore) Close() error                      { return nil }

func jpegUpload(t *testing.T) Upload {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return Upload{Filename: "pill photo.jpg", ContentType: "image/jpeg", Content: buf.Bytes()}
}

func TestVerify_HappyPath(t *testing.T) {
	st := &fakeStore{}
	blobs := &fakeBlob{}
	classifier := &fakeClassifier{result: model.Classification{
		Verdict:    model.VerdictOriginal,
		Confidence: 92,
		Metadata:   model.ScanMetadata{DrugName: "Panadol", Indicators: []string{"hologram intact"}},
	}}
	p := New(st, blobs, classifier, Config{})

	geo := &model.Geolocation{Lat: 6.52, Lng: 3.37}
	record, err := p.Verify(context.Background(), jpegUpload(t), geo)
	require.NoError(t, err)

	assert.Equal(t, "scan-1", record.ID)
	assert.Equal(t, model.VerdictOriginal, record.Verdict)
	assert.Equal(t, 92, record.Confidence)
	assert.Equal(t, geo, record.Geolocation)
	assert.False(t, record.Degraded)

	// The classifier must see the same URL that was persisted.
	assert.Equal(t, record.ImageURL, classifier.imageURL)
	assert.True(t, strings.HasPrefix(record.ImageURL, "https://blobs.test/scans/"))
	require.Len(t, st.scans, 1)
}

func TestVerify_EmptyUpload(t *testing.T) {
	p := New(&fakeStore{}, &fakeBlob{}, &fakeClassifier{}, Config{})

	_, err := p.Verify(context.Background(), Upload{Filename: "x.jpg"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestVerify_UndecodableImage(t *testing.T) {
	st := &fakeStore{}
	blobs := &fakeBlob{}
	p := New(st, blobs, &fakeClassifier{}, Config{MaxImageBytes: 10})

	_, err := p.Verify(context.Background(), Upload{
		Filename: "junk.jpg",
		Content:  bytes.Repeat([]byte{0xff}, 100),
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnprocessableImage))
	assert.Empty(t, blobs.keys, "nothing may be uploaded for an undecodable image")
	assert.Empty(t, st.scans)
}

func TestVerify_BlobFailure(t *testing.T) {
	st := &fakeStore{}
	blobs := &fakeBlob{err: errors.New("bucket gone")}
	p := New(st, blobs, &fakeClassifier{}, Config{})

	_, err := p.Verify(context.Background(), jpegUpload(t), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.Empty(t, st.scans, "nothing may be persisted when the upload failed")
}

func TestVerify_PersistenceFailure(t *testing.T) {
	st := &fakeStore{scanErr: errors.New("db down")}
	p := New(st, &fakeBlob{}, &fakeClassifier{result: model.Classification{
		Verdict: model.VerdictFake, Confidence: 50,
	}}, Config{})

	_, err := p.Verify(context.Background(), jpegUpload(t), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistenceFailure))
}

func TestVerify_DegradedClassificationIsPersisted(t *testing.T) {
	st := &fakeStore{}
	p := New(st, &fakeBlob{}, &fakeClassifier{result: model.Classification{
		Verdict:        model.VerdictFake,
		Confidence:     50,
		Degraded:       true,
		DegradedReason: "circuit open",
	}}, Config{})

	record, err := p.Verify(context.Background(), jpegUpload(t), nil)
	require.NoError(t, err, "a degraded verdict is still a successful scan")
	assert.True(t, record.Degraded)
	assert.Equal(t, model.VerdictFake, record.Verdict)
}

func TestTrain_HappyPath(t *testing.T) {
	st := &fakeStore{}
	blobs := &fakeBlob{}
	p := New(st, blobs, &fakeClassifier{}, Config{})

	img, err := p.Train(context.Background(), jpegUpload(t), model.VerdictFake,
		model.TrainingMetadata{DrugName: "Amoxil", Notes: "confiscated batch"}, "admin")
	require.NoError(t, err)

	assert.Equal(t, "training-1", img.ID)
	assert.Equal(t, model.VerdictFake, img.Label)
	assert.Equal(t, model.TrainingStatusPending, img.Status)
	assert.True(t, strings.HasPrefix(img.ImageURL, "https://blobs.test/training/"))

	require.Len(t, st.audits, 1)
	assert.Equal(t, model.AuditActionUpload, st.audits[0].Action)
	assert.Equal(t, "admin", st.audits[0].UserID)
}

func TestTrain_InvalidLabel(t *testing.T) {
	p := New(&fakeStore{}, &fakeBlob{}, &fakeClassifier{}, Config{})

	_, err := p.Train(context.Background(), jpegUpload(t), "dubious", model.TrainingMetadata{}, "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestTrain_AuditFailureDoesNotFailUpload(t *testing.T) {
	st := &fakeStore{auditErr: errors.New("audit table locked")}
	p := New(st, &fakeBlob{}, &fakeClassifier{}, Config{})

	img, err := p.Train(context.Background(), jpegUpload(t), model.VerdictOriginal, model.TrainingMetadata{}, "admin")
	require.NoError(t, err)
	assert.NotNil(t, img)
}

func TestBlobKeySanitizesFilename(t *testing.T) {
	key := blobKey("scans", `..\..\etc\pass wd?.png`)

	assert.True(t, strings.HasPrefix(key, "scans/"))
	assert.NotContains(t, key, `\`)
	assert.NotContains(t, key, " ")
	assert.NotContains(t, key, "?")
	assert.True(t, strings.HasSuffix(key, ".png"))
}

func TestBlobKeysAreUnique(t *testing.T) {
	a := blobKey("scans", "same.jpg")
	b := blobKey("scans", "same.jpg")
	assert.NotEqual(t, a, b)
}
