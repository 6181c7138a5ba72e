package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ppe-monitor-service/internal/domain/ppe"
)

type ViolationRepository struct {
	db *gorm.DB
}

func NewViolationRepository(db *gorm.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

type ViolationEventRecord struct {
	ID                     int64          `gorm:"primaryKey"`
	EventID                string         `gorm:"not null;uniqueIndex"`
	CompanyID              string         `gorm:"not null"`
	CameraID               string         `gorm:"not null"`
	PersonID               string         `gorm:"not null"`
	ViolationType          string         `gorm:"not null"`
	StartTime              time.Time      `gorm:"not null"`
	EndTime                *time.Time
	DurationSeconds        *float64
	SnapshotPath           *string
	ResolutionSnapshotPath *string
	Severity               string         `gorm:"not null"`
	Status                 string         `gorm:"not null"`
	RawPayload             datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt              time.Time
}

func (ViolationEventRecord) TableName() string { return "violation_events" }

func (r *ViolationRepository) CreateEvent(ctx context.Context, ev *ppe.ViolationEvent, rawPayload datatypes.JSON) error {
	rec := ViolationEventRecord{
		EventID:       ev.EventID,
		CompanyID:     ev.CompanyID,
		CameraID:      ev.CameraID,
		PersonID:      ev.PersonID,
		ViolationType: ev.ViolationType,
		StartTime:     ev.StartTime,
		Severity:      ev.Severity,
		Status:        ev.Status,
		CreatedAt:     time.Now(),
	}
	if ev.SnapshotPath != "" {
		rec.SnapshotPath = &ev.SnapshotPath
	}
	if len(rawPayload) > 0 {
		rec.RawPayload = rawPayload
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// CloseEvent finalizes a previously created record. Status is resolved
// or auto_resolved; a record already closed is left untouched so the
// terminal transition stays one-way even if a sweep races a late frame
// through the service layer.
func (r *ViolationRepository) CloseEvent(ctx context.Context, ev *ppe.ViolationEvent) error {
	updates := map[string]interface{}{
		"end_time":         ev.EndTime,
		"duration_seconds": ev.DurationSeconds,
		"status":           ev.Status,
	}
	if ev.ResolutionSnapshotPath != "" {
		updates["resolution_snapshot_path"] = ev.ResolutionSnapshotPath
	}
	return r.db.WithContext(ctx).
		Model(&ViolationEventRecord{}).
		Where("event_id = ? AND status = ?", ev.EventID, ppe.StatusActive).
		Updates(updates).Error
}

// FindPersonEvents returns closed events for one person whose start
// falls inside [from, to).
func (r *ViolationRepository) FindPersonEvents(ctx context.Context, personID string, from, to time.Time) ([]ppe.ViolationEvent, error) {
	var recs []ViolationEventRecord
	err := r.db.WithContext(ctx).
		Where("person_id = ? AND status IN ? AND start_time >= ? AND start_time < ?",
			personID, closedStatuses, from, to).
		Order("start_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return toDomain(recs), nil
}

// FindCompanyEvents returns closed events for a company in [from, to),
// grouped by person.
func (r *ViolationRepository) FindCompanyEvents(ctx context.Context, companyID string, from, to time.Time) (map[string][]ppe.ViolationEvent, error) {
	var recs []ViolationEventRecord
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status IN ? AND start_time >= ? AND start_time < ?",
			companyID, closedStatuses, from, to).
		Order("start_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]ppe.ViolationEvent)
	for _, rec := range recs {
		grouped[rec.PersonID] = append(grouped[rec.PersonID], *recToDomain(rec))
	}
	return grouped, nil
}

var closedStatuses = []string{ppe.StatusResolved, ppe.StatusAutoResolved}

// Stats aggregates stored events since the window start, optionally
// scoped to one camera. Durations count closed events only.
func (r *ViolationRepository) Stats(ctx context.Context, cameraID string, since time.Time) (*ppe.ViolationStats, error) {
	base := r.db.WithContext(ctx).Model(&ViolationEventRecord{}).Where("start_time >= ?", since)
	if cameraID != "" {
		base = base.Where("camera_id = ?", cameraID)
	}

	stats := &ppe.ViolationStats{
		ByType:     make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byType []bucket
	if err := base.Session(&gorm.Session{}).
		Select("violation_type AS key, COUNT(*) AS count").
		Group("violation_type").
		Scan(&byType).Error; err != nil {
		return nil, err
	}
	for _, b := range byType {
		stats.ByType[b.Key] = b.Count
	}

	var bySeverity []bucket
	if err := base.Session(&gorm.Session{}).
		Select("severity AS key, COUNT(*) AS count").
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return nil, err
	}
	for _, b := range bySeverity {
		stats.BySeverity[b.Key] = b.Count
	}

	type durations struct {
		Total float64
		Avg   float64
	}
	var d durations
	if err := base.Session(&gorm.Session{}).
		Where("duration_seconds IS NOT NULL").
		Select("COALESCE(SUM(duration_seconds),0) AS total, COALESCE(AVG(duration_seconds),0) AS avg").
		Scan(&d).Error; err != nil {
		return nil, err
	}
	stats.TotalDurationSeconds = d.Total
	stats.AvgDurationSeconds = d.Avg

	return stats, nil
}

// DeleteOldEvents drops closed events older than the retention window.
func (r *ViolationRepository) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where("status IN ? AND start_time < ?", closedStatuses, cutoff).
		Delete(&ViolationEventRecord{})
	return res.RowsAffected, res.Error
}

func recToDomain(rec ViolationEventRecord) *ppe.ViolationEvent {
	ev := &ppe.ViolationEvent{
		EventID:       rec.EventID,
		CompanyID:     rec.CompanyID,
		CameraID:      rec.CameraID,
		PersonID:      rec.PersonID,
		ViolationType: rec.ViolationType,
		StartTime:     rec.StartTime,
		EndTime:       rec.EndTime,
		Severity:      rec.Severity,
		Status:        rec.Status,
	}
	if rec.DurationSeconds != nil {
		ev.DurationSeconds = *rec.DurationSeconds
	}
	if rec.SnapshotPath != nil {
		ev.SnapshotPath = *rec.SnapshotPath
	}
	if rec.ResolutionSnapshotPath != nil {
		ev.ResolutionSnapshotPath = *rec.ResolutionSnapshotPath
	}
	return ev
}

func toDomain(recs []ViolationEventRecord) []ppe.ViolationEvent {
	out := make([]ppe.ViolationEvent, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *recToDomain(rec))
	}
	return out
}
