package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/JoshuaOlubori/truemeds-v2/internal/db"
	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_scan":     `INSERT INTO scans (id, image_url, result, confidence, metadata, geolocation, degraded, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_scan":        `SELECT id, image_url, result, confidence, metadata, geolocation, degraded, created_at FROM scans WHERE id = $1`,
	"upsert_feedback": `INSERT INTO scan_feedback (id, scan_id, is_helpful, result_type, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT (scan_id) DO UPDATE SET is_helpful = $3, result_type = $4, updated_at = $5`,
	"insert_training": `INSERT INTO training_images (id, image_url, label, status, metadata, uploaded_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"insert_audit":    `INSERT INTO audit_logs (id, user_id, action, details, created_at) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scans (
	id          TEXT PRIMARY KEY,
	image_url   TEXT NOT NULL,
	result      TEXT,
	confidence  INTEGER,
	metadata    JSONB,
	geolocation JSONB,
	degraded    BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
CREATE INDEX IF NOT EXISTS idx_scans_result ON scans(result);

CREATE TABLE IF NOT EXISTS scan_feedback (
	id          TEXT PRIMARY KEY,
	scan_id     TEXT NOT NULL UNIQUE REFERENCES scans(id),
	is_helpful  BOOLEAN NOT NULL,
	result_type TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_feedback_scan_id ON scan_feedback(scan_id);

CREATE TABLE IF NOT EXISTS training_images (
	id          TEXT PRIMARY KEY,
	image_url   TEXT NOT NULL,
	label       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	metadata    JSONB,
	uploaded_by TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_training_images_status ON training_images(status);
CREATE INDEX IF NOT EXISTS idx_training_images_label ON training_images(label);

CREATE TABLE IF NOT EXISTS audit_logs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	details    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateScan(ctx context.Context, scan model.ScanRecord) (*model.ScanRecord, error) {
	scan.ID = uuid.New().String()
	scan.CreatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(scan.ScanMetadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal scan metadata")
	}

	var geoJSON []byte
	if scan.Geolocation != nil {
		geoJSON, err = json.Marshal(scan.Geolocation)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal geolocation")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scans (id, image_url, result, confidence, metadata, geolocation, degraded, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		scan.ID, scan.ImageURL, string(scan.Verdict), scan.Confidence, metadataJSON, geoJSON, scan.Degraded, scan.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert scan")
	}
	return &scan, nil
}

func (s *PostgresStore) GetScan(ctx context.Context, id string) (*model.ScanRecord, error) {
	var r model.ScanRecord
	var verdict string
	var metadataJSON, geoJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, image_url, result, confidence, metadata, geolocation, degraded, created_at FROM scans WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.ImageURL, &verdict, &r.Confidence, &metadataJSON, &geoJSON, &r.Degraded, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get scan %s", id)
	}

	r.Verdict = model.Verdict(verdict)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &r.ScanMetadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scan metadata")
		}
	}
	if len(geoJSON) > 0 {
		r.Geolocation = &model.Geolocation{}
		if err := json.Unmarshal(geoJSON, r.Geolocation); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal geolocation")
		}
	}
	return &r, nil
}

func (s *PostgresStore) UpsertFeedback(ctx context.Context, fb model.Feedback) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_feedback (id, scan_id, is_helpful, result_type, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (scan_id) DO UPDATE SET is_helpful = $3, result_type = $4, updated_at = $5`,
		uuid.New().String(), fb.ScanID, fb.IsHelpful, fb.ResultType, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert feedback %s", fb.ScanID)
}

func (s *PostgresStore) GetFeedback(ctx context.Context, scanID string) (*model.Feedback, error) {
	var fb model.Feedback
	err := s.pool.QueryRow(ctx,
		`SELECT scan_id, is_helpful, result_type, created_at, updated_at FROM scan_feedback WHERE scan_id = $1`,
		scanID,
	).Scan(&fb.ScanID, &fb.IsHelpful, &fb.ResultType, &fb.CreatedAt, &fb.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get feedback %s", scanID)
	}
	return &fb, nil
}

func (s *PostgresStore) CreateTrainingImage(ctx context.Context, img model.TrainingImage) (*model.TrainingImage, error) {
	img.ID = uuid.New().String()
	img.CreatedAt = time.Now().UTC()
	if img.Status == "" {
		img.Status = model.TrainingStatusPending
	}

	metadataJSON, err := json.Marshal(img.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal training metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO training_images (id, image_url, label, status, metadata, uploaded_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		img.ID, img.ImageURL, string(img.Label), string(img.Status), metadataJSON, img.UploadedBy, img.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert training image")
	}
	return &img, nil
}

func (s *PostgresStore) ListTrainingImages(ctx context.Context, filter TrainingFilter) ([]model.TrainingImage, error) {
	query := `SELECT id, image_url, label, status, metadata, uploaded_by, created_at FROM training_images WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Label != "" {
		query += fmt.Sprintf(` AND label = $%d`, argIdx)
		args = append(args, string(filter.Label))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list training images")
	}
	defer rows.Close()

	var images []model.TrainingImage
	for rows.Next() {
		var img model.TrainingImage
		var label, status string
		var metadataJSON []byte
		if err := rows.Scan(&img.ID, &img.ImageURL, &label, &status, &metadataJSON, &img.UploadedBy, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan training image")
		}
		img.Label = model.Verdict(label)
		img.Status = model.TrainingStatus(status)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &img.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal training metadata")
			}
		}
		images = append(images, img)
	}
	return images, eris.Wrap(rows.Err(), "postgres: list training images iterate")
}

func (s *PostgresStore) AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, details, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), entry.UserID, string(entry.Action), entry.Details, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: append audit log")
}

func (s *PostgresStore) CountScans(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scans`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count scans")
}

func (s *PostgresStore) CountScansSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scans WHERE created_at > $1`, since).Scan(&count)
	return count, eris.Wrap(err, "postgres: count scans since")
}

func (s *PostgresStore) CountScansByVerdict(ctx context.Context, verdict model.Verdict) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scans WHERE result = $1`, string(verdict)).Scan(&count)
	return count, eris.Wrap(err, "postgres: count scans by verdict")
}

func (s *PostgresStore) CountDegradedScansSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scans WHERE degraded AND created_at > $1`, since).Scan(&count)
	return count, eris.Wrap(err, "postgres: count degraded scans")
}

func (s *PostgresStore) TrainingStats(ctx context.Context) (*model.TrainingStats, error) {
	var st model.TrainingStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN label = 'original' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN label = 'fake' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'trained' THEN 1 ELSE 0 END), 0)
		FROM training_images`,
	).Scan(&st.Total, &st.Original, &st.Fake, &st.Pending, &st.Processing, &st.Trained)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: training stats")
	}
	return &st, nil
}

func (s *PostgresStore) MonthlyScanCounts(ctx context.Context, since time.Time) ([]MonthBucket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month, COUNT(*)
		FROM scans
		WHERE created_at > $1
		GROUP BY date_trunc('month', created_at)
		ORDER BY date_trunc('month', created_at)`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: monthly scan counts")
	}
	defer rows.Close()

	var buckets []MonthBucket
	for rows.Next() {
		var b MonthBucket
		if err := rows.Scan(&b.Month, &b.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan month bucket")
		}
		buckets = append(buckets, b)
	}
	return buckets, eris.Wrap(rows.Err(), "postgres: monthly scan counts iterate")
}

func (s *PostgresStore) ScanLocations(ctx context.Context, limit int) ([]model.Geolocation, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT geolocation FROM scans WHERE geolocation IS NOT NULL ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan locations")
	}
	defer rows.Close()

	var locations []model.Geolocation
	for rows.Next() {
		var geoJSON []byte
		if err := rows.Scan(&geoJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location row")
		}
		var g model.Geolocation
		if err := json.Unmarshal(geoJSON, &g); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal location")
		}
		locations = append(locations, g)
	}
	return locations, eris.Wrap(rows.Err(), "postgres: scan locations iterate")
}
