package store

import (
	"fmt"
	"time"
)

// DeviceRecord describes the launch one device received.
type DeviceRecord struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Vendor     string `json:"vendor"`
	Type       string `json:"type"`
	Offset     int    `json:"offset"`
	GlobalSize int    `json:"globalSize"`
	LocalSize  int    `json:"localSize"`
}

// StageRecord is the timing of one pipeline stage.
type StageRecord struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report is the persisted outcome of one pipeline run.
//
// A report is written for failed runs too: Error holds the stage diagnostic and
// Correct/Total stay zero when the run never reached validation.
type Report struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId"`

	Backend    string `json:"backend"`
	DeviceType string `json:"deviceType"`
	EntryPoint string `json:"entryPoint"`
	Policy     string `json:"policy"`
	Count      int    `json:"count"`
	Seed       int64  `json:"seed"`

	// Devices lists the launches in device enumeration order. Idle devices
	// under the split policy are omitted.
	Devices []DeviceRecord `json:"devices,omitempty"`

	Correct int `json:"correct"`
	Total   int `json:"total"`

	// MaxAbsError is the largest |output-expected| seen. -1 when it is not a
	// finite number.
	MaxAbsError float64 `json:"maxAbsError"`

	Stages  []StageRecord `json:"stages,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ReportInfo is report metadata for listings.
type ReportInfo struct {
	RunID      string        `json:"runId"`
	Backend    string        `json:"backend"`
	DeviceType string        `json:"deviceType"`
	Count      int           `json:"count"`
	Correct    int           `json:"correct"`
	Total      int           `json:"total"`
	Elapsed    time.Duration `json:"elapsed"`
	Failed     bool          `json:"failed"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Succeeded reports whether the run finished and every value validated.
func (r *Report) Succeeded() bool {
	return r.Error == "" && r.Total > 0 && r.Correct == r.Total
}

// ToInfo converts a full Report to ReportInfo (metadata only).
func (r *Report) ToInfo() ReportInfo {
	return ReportInfo{
		RunID:      r.RunID,
		Backend:    r.Backend,
		DeviceType: r.DeviceType,
		Count:      r.Count,
		Correct:    r.Correct,
		Total:      r.Total,
		Elapsed:    r.Elapsed,
		Failed:     !r.Succeeded(),
		Timestamp:  r.Timestamp,
	}
}

// Validate checks that the report is consistent enough to persist.
func (r *Report) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Backend == "" {
		return &ValidationError{Field: "Backend", Reason: "cannot be empty"}
	}
	if r.Count <= 0 {
		return &ValidationError{Field: "Count", Reason: "must be positive"}
	}
	if r.Correct < 0 || r.Total < 0 {
		return &ValidationError{Field: "Correct/Total", Reason: "cannot be negative"}
	}
	if r.Correct > r.Total {
		return &ValidationError{
			Field:  "Correct",
			Reason: fmt.Sprintf("exceeds total (%d > %d)", r.Correct, r.Total),
		}
	}
	if r.Total != 0 && r.Total != r.Count {
		return &ValidationError{
			Field:  "Total",
			Reason: fmt.Sprintf("must equal count %d, got %d", r.Count, r.Total),
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
