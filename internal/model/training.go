package model

import "time"

// TrainingStatus tracks a training image through the labeling workflow.
// The progression is forward-only: pending → processing → trained. The
// processing and trained transitions are driven by the external training
// job, not by this service.
type TrainingStatus string

const (
	TrainingStatusPending    TrainingStatus = "pending"
	TrainingStatusProcessing TrainingStatus = "processing"
	TrainingStatusTrained    TrainingStatus = "trained"
)

// ValidTrainingStatus reports whether s is a known training status.
func ValidTrainingStatus(s TrainingStatus) bool {
	switch s {
	case TrainingStatusPending, TrainingStatusProcessing, TrainingStatusTrained:
		return true
	}
	return false
}

// TrainingMetadata holds operator-supplied details about a training image.
type TrainingMetadata struct {
	DrugName     string `json:"drugName,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// TrainingImage is an operator-labeled image for model training. The label
// is asserted by the uploader, never inferred.
type TrainingImage struct {
	ID         string           `json:"id"`
	ImageURL   string           `json:"imageUrl"`
	Label      Verdict          `json:"label"`
	Status     TrainingStatus   `json:"status"`
	Metadata   TrainingMetadata `json:"metadata"`
	UploadedBy string           `json:"uploadedBy"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// AuditAction enumerates the admin actions recorded in the audit log.
type AuditAction string

const (
	AuditActionLogin      AuditAction = "login"
	AuditActionUpload     AuditAction = "upload"
	AuditActionModelTrain AuditAction = "model_train"
)

// AuditLogEntry is one append-only audit record.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
