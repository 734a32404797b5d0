package models

import "time"

type QueryRecord struct {
	ID           string
	UserID       string
	QueryText    string
	Intent       string
	Filters      string
	Narrative    string
	Clarified    bool
	ResultError  string
	UsedFallback bool
	LatencyMS    int
	CreatedAt    time.Time
}

// LoadRun is one fetch-normalize-join cycle of the board data.
type LoadRun struct {
	ID             string
	Trigger        string
	Status         string
	SchemaVersion  string
	DealCount      int
	WorkOrderCount int
	Error          string
	DurationMS     int
	StartedAt      time.Time
	Issues         []QualityIssue
}

type QualityIssue struct {
	ID         int
	LoadID     string
	Dataset    string
	Kind       string
	Column     string
	Count      int
	Percentage float64
	Severity   string
	Samples    []string
}

type Feedback struct {
	ID        int
	QueryID   string
	Helpful   bool
	Comment   string
	CreatedAt time.Time
}
