// Package pipeline orchestrates the upload → normalize → store → classify →
// persist flow for scans, and the equivalent flow (minus classification) for
// training images.
package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/blob"
	"github.com/JoshuaOlubori/truemeds-v2/internal/imaging"
	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/oracle"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// Upload is one file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Config tunes the verification pipeline.
type Config struct {
	// MaxImageBytes is the soft ceiling the normalizer targets before the
	// image is shipped to the blob store.
	MaxImageBytes int
}

// Pipeline runs the verification flow. It holds no per-request state;
// concurrent uploads are fully independent.
type Pipeline struct {
	store      store.Store
	blobs      blob.Store
	classifier oracle.Classifier
	cfg        Config
}

// New creates a Pipeline with its collaborators injected.
func New(st store.Store, blobs blob.Store, classifier oracle.Classifier, cfg Config) *Pipeline {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = int(4.5 * 1024 * 1024)
	}
	return &Pipeline{
		store:      st,
		blobs:      blobs,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Verify runs one scan end to end and returns the persisted record.
//
// Steps and their failure modes:
//  1. empty upload → ErrMissingInput, no side effects
//  2. normalize → ErrUnprocessableImage on undecodable input
//  3. blob upload under scans/<uuid>-<filename> → ErrStorageUnavailable,
//     nothing persisted
//  4. classify → never fails; oracle failures come back as a degraded
//     fallback verdict
//  5. persist → ErrPersistenceFailure; the blob remains but no record
//     references it
func (p *Pipeline) Verify(ctx context.Context, upload Upload, geo *model.Geolocation) (*model.ScanRecord, error) {
	if len(upload.Content) == 0 {
		return nil, eris.Wrap(ErrMissingInput, "no file provided")
	}

	normalized, err := imaging.Normalize(upload.Content, p.cfg.MaxImageBytes)
	if err != nil {
		return nil, eris.Wrap(ErrUnprocessableImage, err.Error())
	}

	key := blobKey("scans", upload.Filename)
	imageURL, err := p.blobs.Put(ctx, key, normalized, contentTypeFor(upload, normalized))
	if err != nil {
		return nil, eris.Wrap(ErrStorageUnavailable, err.Error())
	}

	classification := p.classifier.Classify(ctx, imageURL)
	if classification.Degraded {
		zap.L().Warn("pipeline: classification degraded",
			zap.String("image_url", imageURL),
			zap.String("reason", classification.DegradedReason),
		)
	}

	record, err := p.store.CreateScan(ctx, model.ScanRecord{
		ImageURL:     imageURL,
		Verdict:      classification.Verdict,
		Confidence:   classification.Confidence,
		ScanMetadata: classification.Metadata,
		Geolocation:  geo,
		Degraded:     classification.Degraded,
	})
	if err != nil {
		return nil, eris.Wrap(ErrPersistenceFailure, err.Error())
	}

	zap.L().Info("pipeline: scan verified",
		zap.String("scan_id", record.ID),
		zap.String("result", string(record.Verdict)),
		zap.Int("confidence", record.Confidence),
		zap.Bool("degraded", record.Degraded),
	)
	return record, nil
}

// Train stores an operator-labeled training image: same normalize+upload
// mechanics as Verify, no classification, and an audit log entry for the
// upload.
func (p *Pipeline) Train(ctx context.Context, upload Upload, label model.Verdict, metadata model.TrainingMetadata, uploadedBy string) (*model.TrainingImage, error) {
	if len(upload.Content) == 0 {
		return nil, eris.Wrap(ErrMissingInput, "no file provided")
	}
	if !model.ValidVerdict(label) {
		return nil, eris.Wrapf(ErrMissingInput, "invalid label %q", label)
	}

	normalized, err := imaging.Normalize(upload.Content, p.cfg.MaxImageBytes)
	if err != nil {
		return nil, eris.Wrap(ErrUnprocessableImage, err.Error())
	}

	key := blobKey("training", upload.Filename)
	imageURL, err := p.blobs.Put(ctx, key, normalized, contentTypeFor(upload, normalized))
	if err != nil {
		return nil, eris.Wrap(ErrStorageUnavailable, err.Error())
	}

	img, err := p.store.CreateTrainingImage(ctx, model.TrainingImage{
		ImageURL:   imageURL,
		Label:      label,
		Status:     model.TrainingStatusPending,
		Metadata:   metadata,
		UploadedBy: uploadedBy,
	})
	if err != nil {
		return nil, eris.Wrap(ErrPersistenceFailure, err.Error())
	}

	// Audit failure must not fail the upload that already happened.
	if err := p.store.AppendAuditLog(ctx, model.AuditLogEntry{
		UserID:  uploadedBy,
		Action:  model.AuditActionUpload,
		Details: "training image " + img.ID + " labeled " + string(label),
	}); err != nil {
		zap.L().Error("pipeline: audit log write failed",
			zap.String("training_image_id", img.ID),
			zap.Error(err),
		)
	}

	zap.L().Info("pipeline: training image stored",
		zap.String("training_image_id", img.ID),
		zap.String("label", string(label)),
		zap.String("uploaded_by", uploadedBy),
	)
	return img, nil
}

// blobKey builds a fresh unique object key from a random identifier and the
// sanitized original filename.
func blobKey(prefix, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return prefix + "/" + uuid.New().String() + "-" + name
}

// contentTypeFor picks the stored content type. Anything the normalizer
// re-encoded is JPEG; untouched payloads keep their declared type.
func contentTypeFor(upload Upload, normalized []byte) string {
	if len(normalized) != len(upload.Content) {
		return "image/jpeg"
	}
	if upload.ContentType != "" {
		return upload.ContentType
	}
	return "application/octet-stream"
}
