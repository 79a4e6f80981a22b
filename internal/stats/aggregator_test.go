package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// stubStore answers the aggregate queries from canned values and records the
// cutoffs it was asked about.
type stubStore struct {
	total      int
	fake       int
	sinceCount map[time.Duration]int

	now time.Time
	err error

	mu        sync.Mutex
	sinceArgs []time.Time
}

func (s *stubStore) CountScans(ctx context.Context) (int, error) {
	return s.total, s.err
}

func (s *stubStore) CountScansSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	s.sinceArgs = append(s.sinceArgs, since)
	s.mu.Unlock()
	return s.sinceCount[s.now.Sub(since).Round(time.Hour)], s.err
}

func (s *stubStore) CountScansByVerdict(ctx context.Context, verdict model.Verdict) (int, error) {
	return s.fake, s.err
}

func (s *stubStore) CountDegradedScansSince(ctx context.Context, since time.Time) (int, error) {
	return 0, s.err
}

func (s *stubStore) TrainingStats(ctx context.Context) (*model.TrainingStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.TrainingStats{Total: 4, Original: 3, Fake: 1, Pending: 2, Trained: 2}, nil
}

func (s *stubStore) MonthlyScanCounts(ctx context.Context, since time.Time) ([]store.MonthBucket, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []store.MonthBucket{
		{Month: "2026-07", Count: 12},
		{Month: "2026-08", Count: 30},
	}, nil
}

func (s *stubStore) CreateScan(ctx context.Context, scan model.ScanRecord) (*model.ScanRecord, error) {
	return nil, nil
}
func (s *stubStore) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	return nil, nil
}
func (s *stubStore) UpsertFeedback(ctx context.Context, fb model.Feedback) error { return nil }
func (s *stubStore) GetFeedback(ctx context.Context, scanID string) (*model.Feedback, error) {
	return nil, nil
}
func (s *stubStore) CreateTrainingImage(ctx context.Context, img model.TrainingImage) (*model.TrainingImage, error) {
	return nil, nil
}
func (s *stubStore) ListTrainingImages(ctx context.Context, filter store.TrainingFilter) ([]model.TrainingImage, error) {
	return nil, nil
}
func (s *stubStore) AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error {
	return nil
}
func (s *stubStore) ScanLocations(ctx context.Context, limit int) ([]model.Geolocation, error) {
	return nil, nil
}
func (s *stubStore) Migrate(ctx context.Context) error { return nil }
func (s *stubStore) Ping(ctx context.Context) error    { return nil }
func (s *stubStore) Close() error                      { return nil }

func TestCollect(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	st := &stubStore{
		total: 200,
		fake:  30,
		now:   now,
		sinceCount: map[time.Duration]int{
			24 * time.Hour:      5,
			7 * 24 * time.Hour:  40,
			30 * 24 * time.Hour: 120,
		},
	}

	a := New(st)
	a.nowFunc = func() time.Time { return now }

	got, err := a.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 200, got.Scans.Total)
	assert.Equal(t, 5, got.Scans.Last24Hours)
	assert.Equal(t, 40, got.Scans.Last7Days)
	assert.Equal(t, 120, got.Scans.Last30Days)
	assert.Equal(t, 30, got.Scans.FakeDetections)
	assert.Equal(t, 15.0, got.Scans.FakeDetectionRate)

	assert.Equal(t, 4, got.Training.Total)
	assert.Equal(t, 2, got.Training.Trained)

	require.Len(t, got.Trends.Monthly, 2)
	assert.Equal(t, "Jul", got.Trends.Monthly[0].Month)
	assert.Equal(t, "Aug", got.Trends.Monthly[1].Month)
	assert.Equal(t, 30, got.Trends.Monthly[1].Count)

	assert.Equal(t, now, got.CollectedAt)

	// Every windowed query must have been cut from the same now.
	require.Len(t, st.sinceArgs, 3)
	for _, since := range st.sinceArgs {
		assert.True(t, since.Before(now))
	}
}

func TestCollect_StoreError(t *testing.T) {
	st := &stubStore{err: errors.New("db down"), now: time.Now()}

	_, err := New(st).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats: collect")
}

func TestFakeRate(t *testing.T) {
	assert.Equal(t, 0.0, FakeRate(0, 0), "no scans must not divide by zero")
	assert.Equal(t, 0.0, FakeRate(0, 10))
	assert.Equal(t, 100.0, FakeRate(10, 10))
	assert.Equal(t, 33.3, FakeRate(1, 3))
	assert.Equal(t, 66.7, FakeRate(2, 3))
	assert.Equal(t, 15.0, FakeRate(30, 200))
}
