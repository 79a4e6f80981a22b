package model

import "time"

// ScanStats summarizes scan volume and fake-detection figures for the
// dashboard. FakeDetectionRate is a percentage rounded to one decimal,
// zero when no scans exist.
type ScanStats struct {
	Total             int     `json:"total"`
	Last24Hours       int     `json:"last24Hours"`
	Last7Days         int     `json:"last7Days"`
	Last30Days        int     `json:"last30Days"`
	FakeDetections    int     `json:"fakeDetections"`
	FakeDetectionRate float64 `json:"fakeDetectionRate"`
}

// TrainingStats partitions training images by label and by status.
type TrainingStats struct {
	Total      int `json:"total"`
	Original   int `json:"original"`
	Fake       int `json:"fake"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Trained    int `json:"trained"`
}

// MonthlyCount is one calendar-month bucket in the scan trend series.
type MonthlyCount struct {
	Month string `json:"month"` // "Jan", "Feb", ...
	Count int    `json:"count"`
}

// Stats is the full aggregator output served at GET /stats.
type Stats struct {
	Scans       ScanStats     `json:"scans"`
	Training    TrainingStats `json:"training"`
	Trends      TrendStats    `json:"trends"`
	CollectedAt time.Time     `json:"collectedAt"`
}

// TrendStats wraps the time-series portions of the dashboard payload.
type TrendStats struct {
	Monthly []MonthlyCount `json:"monthly"`
}
