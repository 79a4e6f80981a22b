// Package store persists scans, feedback, training images and audit logs,
// and answers the aggregate queries behind the dashboard.
package store

import (
	"context"
	"time"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
)

// TrainingFilter specifies criteria for listing training images.
type TrainingFilter struct {
	Status model.TrainingStatus `json:"status,omitempty"`
	Label  model.Verdict        `json:"label,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
}

// MonthBucket is one month of scan volume as stored. Month is "YYYY-MM".
type MonthBucket struct {
	Month string
	Count int
}

// Store defines the persistence interface for the verification service.
// Get-style methods return (nil, nil) when the row does not exist.
type Store interface {
	// Scans. Records are written exactly once and never mutated.
	CreateScan(ctx context.Context, scan model.ScanRecord) (*model.ScanRecord, error)
	GetScan(ctx context.Context, id string) (*model.ScanRecord, error)

	// Feedback, one row per scan.
	UpsertFeedback(ctx context.Context, fb model.Feedback) error
	GetFeedback(ctx context.Context, scanID string) (*model.Feedback, error)

	// Training images.
	CreateTrainingImage(ctx context.Context, img model.TrainingImage) (*model.TrainingImage, error)
	ListTrainingImages(ctx context.Context, filter TrainingFilter) ([]model.TrainingImage, error)

	// Audit log, append-only.
	AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error

	// Aggregates for the dashboard.
	CountScans(ctx context.Context) (int, error)
	CountScansSince(ctx context.Context, since time.Time) (int, error)
	CountScansByVerdict(ctx context.Context, verdict model.Verdict) (int, error)
	CountDegradedScansSince(ctx context.Context, since time.Time) (int, error)
	TrainingStats(ctx context.Context) (*model.TrainingStats, error)
	MonthlyScanCounts(ctx context.Context, since time.Time) ([]MonthBucket, error)
	ScanLocations(ctx context.Context, limit int) ([]model.Geolocation, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
