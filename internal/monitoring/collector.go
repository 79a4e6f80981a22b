// Package monitoring watches oracle health through the scan history and
// raises alerts when the degraded-result rate climbs.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// MetricsSnapshot holds a point-in-time view of verification health.
type MetricsSnapshot struct {
	// Scan metrics within the lookback window.
	ScansTotal    int     `json:"scans_total"`
	ScansDegraded int     `json:"scans_degraded"`
	DegradedRate  float64 `json:"degraded_rate"`

	// FakeDetectedTotal counts fake verdicts over the whole scan history,
	// not the lookback window.
	FakeDetectedTotal int `json:"fake_detected_total"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window. A degraded scan
// is one that carries the fallback verdict because the oracle call failed.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	total, err := c.store.CountScansSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count scans")
	}
	snap.ScansTotal = total

	degraded, err := c.store.CountDegradedScansSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count degraded scans")
	}
	snap.ScansDegraded = degraded
	if total > 0 {
		snap.DegradedRate = float64(degraded) / float64(total)
	}

	fake, err := c.store.CountScansByVerdict(ctx, model.VerdictFake)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count fake scans")
	}
	snap.FakeDetectedTotal = fake

	return snap, nil
}
