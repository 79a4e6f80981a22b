// Package stats derives the dashboard figures from the store. Every call
// re-executes the aggregate queries; nothing is cached.
package stats

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// trendMonths is the length of the monthly time series.
const trendMonths = 12

// Aggregator runs the dashboard queries against a store.
type Aggregator struct {
	store store.Store
	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates an Aggregator over the given store.
func New(st store.Store) *Aggregator {
	return &Aggregator{store: st, nowFunc: time.Now}
}

// Collect runs all aggregate queries concurrently against a single
// wall-clock now and assembles the dashboard payload. The window counts are
// independent reads, not a consistent snapshot.
func (a *Aggregator) Collect(ctx context.Context) (*model.Stats, error) {
	now := a.nowFunc().UTC()

	var (
		total, fake              int
		last24h, last7d, last30d int
		training                 *model.TrainingStats
		buckets                  []store.MonthBucket
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = a.store.CountScans(gCtx)
		return err
	})
	g.Go(func() (err error) {
		fake, err = a.store.CountScansByVerdict(gCtx, model.VerdictFake)
		return err
	})
	g.Go(func() (err error) {
		last24h, err = a.store.CountScansSince(gCtx, now.Add(-24*time.Hour))
		return err
	})
	g.Go(func() (err error) {
		last7d, err = a.store.CountScansSince(gCtx, now.AddDate(0, 0, -7))
		return err
	})
	g.Go(func() (err error) {
		last30d, err = a.store.CountScansSince(gCtx, now.AddDate(0, 0, -30))
		return err
	})
	g.Go(func() (err error) {
		training, err = a.store.TrainingStats(gCtx)
		return err
	})
	g.Go(func() (err error) {
		buckets, err = a.store.MonthlyScanCounts(gCtx, now.AddDate(0, -trendMonths, 0))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "stats: collect")
	}

	return &model.Stats{
		Scans: model.ScanStats{
			Total:             total,
			Last24Hours:       last24h,
			Last7Days:         last7d,
			Last30Days:        last30d,
			FakeDetections:    fake,
			FakeDetectionRate: FakeRate(fake, total),
		},
		Training:    *training,
		Trends:      model.TrendStats{Monthly: monthLabels(buckets)},
		CollectedAt: now,
	}, nil
}

// FakeRate is the fake-detection percentage rounded to one decimal. Zero
// when no scans exist.
func FakeRate(fake, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(100*float64(fake)/float64(total)*10) / 10
}

// monthLabels converts "YYYY-MM" buckets into short month names for the
// chart axis.
func monthLabels(buckets []store.MonthBucket) []model.MonthlyCount {
	out := make([]model.MonthlyCount, 0, len(buckets))
	for _, b := range buckets {
		label := b.Month
		if t, err := time.Parse("2006-01", b.Month); err == nil {
			label = t.Format("Jan")
		}
		out = append(out, model.MonthlyCount{Month: label, Count: b.Count})
	}
	return out
}
