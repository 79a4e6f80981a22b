package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for
// single-node deployments and the test suite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scans (
	id          TEXT PRIMARY KEY,
	image_url   TEXT NOT NULL,
	result      TEXT,
	confidence  INTEGER,
	metadata    TEXT,
	geolocation TEXT,
	degraded    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
CREATE INDEX IF NOT EXISTS idx_scans_result ON scans(result);

CREATE TABLE IF NOT EXISTS scan_feedback (
	id          TEXT PRIMARY KEY,
	scan_id     TEXT NOT NULL UNIQUE REFERENCES scans(id),
	is_helpful  INTEGER NOT NULL,
	result_type TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS training_images (
	id          TEXT PRIMARY KEY,
	image_url   TEXT NOT NULL,
	label       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	metadata    TEXT,
	uploaded_by TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_images_status ON training_images(status);
CREATE INDEX IF NOT EXISTS idx_training_images_label ON training_images(label);

CREATE TABLE IF NOT EXISTS audit_logs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	details    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateScan(ctx context.Context, scan model.ScanRecord) (*model.ScanRecord, error) {
	scan.ID = uuid.New().String()
	scan.CreatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(scan.ScanMetadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal scan metadata")
	}

	var geoJSON any
	if scan.Geolocation != nil {
		data, err := json.Marshal(scan.Geolocation)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal geolocation")
		}
		geoJSON = string(data)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scans (id, image_url, result, confidence, metadata, geolocation, degraded, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.ImageURL, string(scan.Verdict), scan.Confidence, string(metadataJSON), geoJSON, scan.Degraded, scan.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert scan")
	}
	return &scan, nil
}

func (s *SQLiteStore) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	var r model.ScanRecord
	var verdict, metadataJSON string
	var geoJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_url, result, confidence, metadata, geolocation, degraded, created_at FROM scans WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.ImageURL, &verdict, &r.Confidence, &metadataJSON, &geoJSON, &r.Degraded, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get scan %s", id)
	}

	r.Verdict = model.Verdict(verdict)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &r.ScanMetadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scan metadata")
		}
	}
	if geoJSON.Valid && geoJSON.String != "" {
		r.Geolocation = &model.Geolocation{}
		if err := json.Unmarshal([]byte(geoJSON.String), r.Geolocation); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal geolocation")
		}
	}
	return &r, nil
}

func (s *SQLiteStore) UpsertFeedback(ctx context.Context, fb model.Feedback) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_feedback (id, scan_id, is_helpful, result_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (scan_id) DO UPDATE SET is_helpful = excluded.is_helpful, result_type = excluded.result_type, updated_at = excluded.updated_at`,
		uuid.New().String(), fb.ScanID, fb.IsHelpful, fb.ResultType, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert feedback %s", fb.ScanID)
}

func (s *SQLiteStore) GetFeedback(ctx context.Context, scanID string) (*model.Feedback, error) {
	var fb model.Feedback
	err := s.db.QueryRowContext(ctx,
		`SELECT scan_id, is_helpful, result_type, created_at, updated_at FROM scan_feedback WHERE scan_id = ?`,
		scanID,
	).Scan(&fb.ScanID, &fb.IsHelpful, &fb.ResultType, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get feedback %s", scanID)
	}
	return &fb, nil
}

func (s *SQLiteStore) CreateTrainingImage(ctx context.Context, img model.TrainingImage) (*model.TrainingImage, error) {
	img.ID = uuid.New().String()
	img.CreatedAt = time.Now().UTC()
	if img.Status == "" {
		img.Status = model.TrainingStatusPending
	}

	metadataJSON, err := json.Marshal(img.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal training metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO training_images (id, image_url, label, status, metadata, uploaded_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.ImageURL, string(img.Label), string(img.Status), string(metadataJSON), img.UploadedBy, img.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert training image")
	}
	return &img, nil
}

func (s *SQLiteStore) ListTrainingImages(ctx context.Context, filter TrainingFilter) ([]model.TrainingImage, error) {
	query := `SELECT id, image_url, label, status, metadata, uploaded_by, created_at FROM training_images WHERE true`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Label != "" {
		query += ` AND label = ?`
		args = append(args, string(filter.Label))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list training images")
	}
	defer rows.Close()

	var images []model.TrainingImage
	for rows.Next() {
		var img model.TrainingImage
		var label, status, metadataJSON string
		if err := rows.Scan(&img.ID, &img.ImageURL, &label, &status, &metadataJSON, &img.UploadedBy, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan training image")
		}
		img.Label = model.Verdict(label)
		img.Status = model.TrainingStatus(status)
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &img.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal training metadata")
			}
		}
		images = append(images, img)
	}
	return images, eris.Wrap(rows.Err(), "sqlite: list training images iterate")
}

func (s *SQLiteStore) AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), entry.UserID, string(entry.Action), entry.Details, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: append audit log")
}

func (s *SQLiteStore) CountScans(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count scans")
}

func (s *SQLiteStore) CountScansSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE created_at > ?`, since).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count scans since")
}

func (s *SQLiteStore) CountScansByVerdict(ctx context.Context, verdict model.Verdict) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE result = ?`, string(verdict)).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count scans by verdict")
}

func (s *SQLiteStore) CountDegradedScansSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE degraded AND created_at > ?`, since).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count degraded scans")
}

func (s *SQLiteStore) TrainingStats(ctx context.Context) (*model.TrainingStats, error) {
	var st model.TrainingStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN label = 'original' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN label = 'fake' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'trained' THEN 1 ELSE 0 END), 0)
		FROM training_images`,
	).Scan(&st.Total, &st.Original, &st.Fake, &st.Pending, &st.Processing, &st.Trained)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: training stats")
	}
	return &st, nil
}

func (s *SQLiteStore) MonthlyScanCounts(ctx context.Context, since time.Time) ([]MonthBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', created_at) AS month, COUNT(*)
		FROM scans
		WHERE created_at > ?
		GROUP BY strftime('%Y-%m', created_at)
		ORDER BY month`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: monthly scan counts")
	}
	defer rows.Close()

	var buckets []MonthBucket
	for rows.Next() {
		var b MonthBucket
		if err := rows.Scan(&b.Month, &b.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan month bucket")
		}
		buckets = append(buckets, b)
	}
	return buckets, eris.Wrap(rows.Err(), "sqlite: monthly scan counts iterate")
}

func (s *SQLiteStore) ScanLocations(ctx context.Context, limit int) ([]model.Geolocation, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT geolocation FROM scans WHERE geolocation IS NOT NULL ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan locations")
	}
	defer rows.Close()

	var locations []model.Geolocation
	for rows.Next() {
		var geoJSON string
		if err := rows.Scan(&geoJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location row")
		}
		var g model.Geolocation
		if err := json.Unmarshal([]byte(geoJSON), &g); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal location")
		}
		locations = append(locations, g)
	}
	return locations, eris.Wrap(rows.Err(), "sqlite: scan locations iterate")
}
