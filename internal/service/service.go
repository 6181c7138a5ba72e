package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"ppe-monitor-service/internal/domain/ppe"
	"ppe-monitor-service/internal/engine"
	"ppe-monitor-service/internal/penalty"
	"ppe-monitor-service/internal/publish"
	"ppe-monitor-service/internal/snapshot"
	"ppe-monitor-service/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// EventStore is the persistence collaborator. The core hands it fully
// formed records and never opens a connection itself.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *ppe.ViolationEvent, rawPayload datatypes.JSON) error
	CloseEvent(ctx context.Context, ev *ppe.ViolationEvent) error
	FindPersonEvents(ctx context.Context, personID string, from, to time.Time) ([]ppe.ViolationEvent, error)
	FindCompanyEvents(ctx context.Context, companyID string, from, to time.Time) (map[string][]ppe.ViolationEvent, error)
	Stats(ctx context.Context, cameraID string, since time.Time) (*ppe.ViolationStats, error)
	DeleteOldEvents(ctx context.Context, days int) (int64, error)
}

// Publisher pushes lifecycle events onto the outbound stream.
type Publisher interface {
	Publish(ctx context.Context, kind string, ev ppe.ViolationEvent)
}

type Service struct {
	engine     *engine.Engine
	store      EventStore
	publisher  Publisher
	snapshots  snapshot.Store
	aggregator *penalty.Aggregator
	clock      engine.Clock
	log        zerolog.Logger
}

func New(e *engine.Engine, store EventStore, publisher Publisher, snaps snapshot.Store, agg *penalty.Aggregator, clock engine.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if snaps == nil {
		snaps = snapshot.NopStore{}
	}
	if agg == nil {
		agg = penalty.NewAggregator(nil)
	}
	return &Service{
		engine:     e,
		store:      store,
		publisher:  publisher,
		snapshots:  snaps,
		aggregator: agg,
		clock:      clock,
		log:        log,
	}
}

// ProcessDetection runs one detector frame through the engine, persists
// the emitted events, and publishes them. Persistence or publish
// failures on a single event are logged and do not abort the frame;
// the in-memory state machine has already transitioned and remains the
// source of truth for active membership.
func (s *Service) ProcessDetection(ctx context.Context, payload ppe.DetectionPayload) (*ppe.ProcessResult, error) {
	if payload.CameraID == "" {
		return nil, fmt.Errorf("%w: camera_id is required", ErrInvalidInput)
	}
	if payload.CompanyID == "" {
		return nil, fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	}
	if payload.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}

	det := ppe.Detection{
		CameraID:    payload.CameraID,
		CompanyID:   payload.CompanyID,
		BBox:        ppe.BBox(payload.PersonBBox),
		Labels:      payload.ViolationLabels,
		At:          utils.TimeFromUnix(payload.Timestamp),
		SnapshotRef: payload.SnapshotRef,
	}

	personID, started, resolved := s.engine.Process(det)

	var snapshotPath string
	if det.SnapshotRef != "" && (len(started) > 0 || len(resolved) > 0) {
		path, err := s.snapshots.Save(det.CameraID, det.SnapshotRef, det.At)
		if err != nil {
			s.log.Warn().Err(err).Str("camera_id", det.CameraID).Msg("failed to archive snapshot")
		} else {
			snapshotPath = path
		}
	}

	var raw datatypes.JSON
	if len(payload.RawPayload) > 0 {
		if encoded, err := json.Marshal(payload.RawPayload); err == nil {
			raw = encoded
		}
	}

	for i := range started {
		ev := &started[i]
		ev.SnapshotPath = snapshotPath
		s.engine.AttachSnapshot(ev.CameraID, ev.PersonID, ev.ViolationType, snapshotPath)
		if err := s.store.CreateEvent(ctx, ev, raw); err != nil {
			s.log.Error().
				Err(err).
				Str("event_id", ev.EventID).
				Str("camera_id", ev.CameraID).
				Msg("failed to persist started violation")
		}
		s.publish(ctx, publish.KindStarted, *ev)
	}

	for i := range resolved {
		ev := &resolved[i]
		ev.ResolutionSnapshotPath = snapshotPath
		if err := s.store.CloseEvent(ctx, ev); err != nil {
			s.log.Error().
				Err(err).
				Str("event_id", ev.EventID).
				Str("camera_id", ev.CameraID).
				Msg("failed to persist resolved violation")
		}
		s.publish(ctx, publish.KindResolved, *ev)
	}

	return &ppe.ProcessResult{
		PersonID: personID,
		Started:  started,
		Resolved: resolved,
	}, nil
}

// HandleAutoResolved is the sweeper's sink: auto-closed events flow to
// the same store and stream as explicit resolutions.
func (s *Service) HandleAutoResolved(events []ppe.ViolationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := range events {
		ev := &events[i]
		if err := s.store.CloseEvent(ctx, ev); err != nil {
			s.log.Error().
				Err(err).
				Str("event_id", ev.EventID).
				Msg("failed to persist auto-resolved violation")
		}
		s.publish(ctx, publish.KindAutoResolved, *ev)
	}
}

func (s *Service) publish(ctx context.Context, kind string, ev ppe.ViolationEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, kind, ev)
}

// ActiveViolations lists currently open events from engine memory.
func (s *Service) ActiveViolations(cameraID string) []ppe.ViolationEvent {
	return s.engine.ActiveViolations(cameraID)
}

// ViolationStats aggregates stored events over the trailing window.
func (s *Service) ViolationStats(ctx context.Context, cameraID string, windowHours int) (*ppe.ViolationStats, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := s.clock().Add(-time.Duration(windowHours) * time.Hour)
	stats, err := s.store.Stats(ctx, cameraID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute violation stats: %w", err)
	}
	return stats, nil
}

// PersonPenalty prices one person's closed events for the given month.
func (s *Service) PersonPenalty(ctx context.Context, personID string, month time.Time) (*penalty.PersonPenalty, error) {
	if personID == "" {
		return nil, fmt.Errorf("%w: person_id is required", ErrInvalidInput)
	}
	from, to := monthBounds(month)
	events, err := s.store.FindPersonEvents(ctx, personID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for person: %w", err)
	}
	rec := s.aggregator.CalculateForPerson(personID, events, month)
	return &rec, nil
}

// CompanyPenalty prices a company's closed events for the given month,
// summed across persons.
func (s *Service) CompanyPenalty(ctx context.Context, companyID string, month time.Time) (*penalty.CompanyPenalty, error) {
	if companyID == "" {
		return nil, fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	}
	from, to := monthBounds(month)
	personEvents, err := s.store.FindCompanyEvents(ctx, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for company: %w", err)
	}
	rec := s.aggregator.CalculateForCompany(companyID, personEvents, month)
	return &rec, nil
}

// CleanupOldEvents deletes closed events older than the given number of
// days and reports how many were removed.
func (s *Service) CleanupOldEvents(ctx context.Context, days int) (int64, error) {
	deleted, err := s.store.DeleteOldEvents(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old events")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old events")
	}
	return deleted, nil
}

func monthBounds(month time.Time) (time.Time, time.Time) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
