package model

import (
	"time"
)

// Verdict is the binary classification outcome for a scanned medication.
type Verdict string

const (
	VerdictFake     Verdict = "fake"
	VerdictOriginal Verdict = "original"
)

// ValidVerdict reports whether v is one of the two known verdicts.
func ValidVerdict(v Verdict) bool {
	return v == VerdictFake || v == VerdictOriginal
}

// Geolocation is an optional lat/lng pair captured at scan time.
type Geolocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ScanMetadata holds the free-form details the oracle extracted from the image.
type ScanMetadata struct {
	DrugName     string   `json:"drugName,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Indicators   []string `json:"indicators,omitempty"`
}

// Classification is the validated result of one oracle call. It is transient:
// consumed once to build a ScanRecord, never persisted on its own.
//
// Degraded marks results that came from the fixed fallback rather than a real
// verdict, so callers can tell an infrastructure failure apart from a genuine
// low-confidence classification. DegradedReason carries the failure detail.
type Classification struct {
	Verdict        Verdict      `json:"result"`
	Confidence     int          `json:"confidence"`
	Metadata       ScanMetadata `json:"metadata"`
	Degraded       bool         `json:"degraded,omitempty"`
	DegradedReason string       `json:"-"`
}

// ScanRecord is one verification record. Records are written exactly once at
// creation and never mutated or deleted. ScanMetadata is embedded so
// drugName, manufacturer and indicators serialize as top-level keys of the
// scan response.
type ScanRecord struct {
	ID         string  `json:"id"`
	ImageURL   string  `json:"imageUrl"`
	Verdict    Verdict `json:"result"`
	Confidence int     `json:"confidence"`
	ScanMetadata
	Geolocation *Geolocation `json:"geolocation,omitempty"`
	Degraded    bool         `json:"degraded,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Feedback is a user's thumbs-up/down on a scan result, one row per scan.
type Feedback struct {
	ScanID     string    `json:"scanId"`
	IsHelpful  bool      `json:"isHelpful"`
	ResultType string    `json:"resultType"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
