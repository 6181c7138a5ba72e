package ppe

import (
	"time"
)

// Violation types reported by the detector. Unknown labels are passed
// through verbatim with SeverityInfo.
const (
	TypeNoHelmet = "no_helmet"
	TypeNoVest   = "no_vest"
	TypeNoShoes  = "no_shoes"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

const (
	StatusActive       = "active"
	StatusResolved     = "resolved"
	StatusAutoResolved = "auto_resolved"
)

// BBox is an axis-aligned rectangle [x1,y1,x2,y2] in pixel coordinates.
type BBox [4]float64

// Width and Height may be negative for malformed boxes; callers treat
// non-positive area as "matches nothing".
func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b BBox) Center() (x, y float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// DetectionPayload is the wire contract with the detector collaborator:
// one call per processed frame per person. Timestamp is Unix seconds
// (fractional allowed). SnapshotRef is an opaque reference the core only
// forwards, never decodes.
type DetectionPayload struct {
	CameraID        string                 `json:"camera_id"`
	CompanyID       string                 `json:"company_id"`
	PersonBBox      [4]float64             `json:"person_bbox"`
	ViolationLabels []string               `json:"violation_labels"`
	Timestamp       float64                `json:"timestamp"`
	SnapshotRef     string                 `json:"snapshot_ref,omitempty"`
	RawPayload      map[string]interface{} `json:"raw_payload,omitempty"`
}

// Detection is the normalized form the engine consumes.
type Detection struct {
	CameraID    string
	CompanyID   string
	BBox        BBox
	Labels      []string
	At          time.Time
	SnapshotRef string
}

// TrackedPerson is ephemeral per-camera identity state owned by the
// identity tracker.
type TrackedPerson struct {
	ID       string
	LastBBox BBox
	LastSeen time.Time
}

// ViolationEvent is one bounded interval during which a person lacked a
// piece of PPE. At most one event per (camera, person, type) may be
// active at a time; a closed event is never reopened.
type ViolationEvent struct {
	EventID                string     `json:"event_id"`
	CompanyID              string     `json:"company_id"`
	CameraID               string     `json:"camera_id"`
	PersonID               string     `json:"person_id"`
	ViolationType          string     `json:"violation_type"`
	StartTime              time.Time  `json:"start_time"`
	EndTime                *time.Time `json:"end_time,omitempty"`
	DurationSeconds        float64    `json:"duration_seconds"`
	Status                 string     `json:"status"`
	Severity               string     `json:"severity"`
	SnapshotPath           string     `json:"snapshot_path,omitempty"`
	ResolutionSnapshotPath string     `json:"resolution_snapshot_path,omitempty"`
}

// ProcessResult summarizes one engine pass over a detection.
type ProcessResult struct {
	PersonID string           `json:"person_id"`
	Started  []ViolationEvent `json:"started"`
	Resolved []ViolationEvent `json:"resolved"`
}

// ViolationStats is a windowed aggregate over stored events.
type ViolationStats struct {
	Total                int64            `json:"total"`
	ByType               map[string]int64 `json:"by_type"`
	BySeverity           map[string]int64 `json:"by_severity"`
	TotalDurationSeconds float64          `json:"total_duration_seconds"`
	AvgDurationSeconds   float64          `json:"avg_duration_seconds"`
}

// SeverityFor maps a violation type to its severity class. Unknown
// types default to info rather than failing.
func SeverityFor(violationType string) string {
	switch violationType {
	case TypeNoHelmet:
		return SeverityCritical
	case TypeNoVest, TypeNoShoes:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
