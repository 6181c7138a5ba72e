package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ppe-monitor-service/internal/domain/ppe"
	"ppe-monitor-service/internal/tracker"
	"ppe-monitor-service/internal/utils"
)

// Clock supplies the current time. Injected so lifecycle tests can step
// time deterministically instead of sleeping.
type Clock func() time.Time

// Options tune the engine and its sweeper.
type Options struct {
	IoUThreshold   float64
	PersonTimeout  time.Duration
	CooldownPeriod time.Duration
	Strategy       tracker.MatchStrategy
}

const (
	DefaultPersonTimeout  = 5 * time.Second
	DefaultCooldownPeriod = 60 * time.Second
)

// Engine is the violation state machine. It owns the active-violation
// table and the identity tracker; all access to both is serialized by
// one mutex shared with the sweeper. It is the sole writer of event
// status transitions, which are strictly active -> resolved or
// active -> auto_resolved.
type Engine struct {
	mu       sync.Mutex
	tracker  *tracker.Tracker
	active   map[string]map[string]*ppe.ViolationEvent // camera|person -> type -> event
	clock    Clock
	log      zerolog.Logger
	cooldown time.Duration
	timeout  time.Duration
}

func New(opts Options, clock Clock, log zerolog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if opts.PersonTimeout <= 0 {
		opts.PersonTimeout = DefaultPersonTimeout
	}
	if opts.CooldownPeriod <= 0 {
		opts.CooldownPeriod = DefaultCooldownPeriod
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = tracker.IoUStrategy{MinIoU: opts.IoUThreshold}
	}
	return &Engine{
		tracker:  tracker.New(strategy),
		active:   make(map[string]map[string]*ppe.ViolationEvent),
		clock:    clock,
		log:      log,
		cooldown: opts.CooldownPeriod,
		timeout:  opts.PersonTimeout,
	}
}

func activeKey(cameraID, personID string) string {
	return cameraID + "\x00" + personID
}

// Process resolves the detection to a person identity, diffs the
// reported labels against that person's active violations, and returns
// the events that started and resolved on this frame. Labels both
// previously and currently active emit nothing; that is the steady
// state while a violation is ongoing.
func (e *Engine) Process(d ppe.Detection) (personID string, started, resolved []ppe.ViolationEvent) {
	now := d.At
	if now.IsZero() {
		now = e.clock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	personID = e.tracker.Match(d.CameraID, d.BBox, now)
	key := activeKey(d.CameraID, personID)

	current := make(map[string]struct{}, len(d.Labels))
	for _, label := range d.Labels {
		if norm := utils.NormalizeLabel(label); norm != "" {
			current[norm] = struct{}{}
		}
	}

	activeTypes := e.active[key]

	for vt := range current {
		if _, ongoing := activeTypes[vt]; ongoing {
			continue
		}
		ev := &ppe.ViolationEvent{
			EventID:       uuid.NewString(),
			CompanyID:     d.CompanyID,
			CameraID:      d.CameraID,
			PersonID:      personID,
			ViolationType: vt,
			StartTime:     now,
			Status:        ppe.StatusActive,
			Severity:      ppe.SeverityFor(vt),
		}
		if activeTypes == nil {
			activeTypes = make(map[string]*ppe.ViolationEvent)
			e.active[key] = activeTypes
		}
		activeTypes[vt] = ev
		started = append(started, *ev)
		e.log.Info().
			Str("event_id", ev.EventID).
			Str("camera_id", d.CameraID).
			Str("person_id", personID).
			Str("violation_type", vt).
			Str("severity", ev.Severity).
			Time("start_time", now).
			Msg("violation started")
	}

	for vt, ev := range activeTypes {
		if _, stillPresent := current[vt]; stillPresent {
			continue
		}
		closeEvent(ev, now, ppe.StatusResolved)
		delete(activeTypes, vt)
		resolved = append(resolved, *ev)
		e.log.Info().
			Str("event_id", ev.EventID).
			Str("camera_id", d.CameraID).
			Str("person_id", personID).
			Str("violation_type", vt).
			Float64("duration_seconds", ev.DurationSeconds).
			Msg("violation resolved")
	}
	if len(activeTypes) == 0 {
		delete(e.active, key)
	}

	return personID, started, resolved
}

func closeEvent(ev *ppe.ViolationEvent, now time.Time, status string) {
	end := now
	ev.EndTime = &end
	ev.DurationSeconds = roundSeconds(end.Sub(ev.StartTime))
	ev.Status = status
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Second) / time.Second)
}

// AttachSnapshot records the archived start-snapshot path on a
// still-active event so later copies of it (active listings, resolve
// and sweep emissions) carry the path. A no-op once the event has left
// the active table.
func (e *Engine) AttachSnapshot(cameraID, personID, violationType, path string) {
	if path == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev, ok := e.active[activeKey(cameraID, personID)][violationType]; ok {
		ev.SnapshotPath = path
	}
}

// ActiveViolations returns copies of currently active events, filtered
// to one camera when cameraID is non-empty.
func (e *Engine) ActiveViolations(cameraID string) []ppe.ViolationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []ppe.ViolationEvent
	for _, types := range e.active {
		for _, ev := range types {
			if cameraID != "" && ev.CameraID != cameraID {
				continue
			}
			out = append(out, *ev)
		}
	}
	return out
}

// SweepExpired force-closes active violations older than the cooldown
// period as auto_resolved, evicts stale identities that own no active
// violation, and prunes frame-bucket bookkeeping. A violation that is
// still genuinely ongoing is closed too; the condition re-opens as a
// new event on the next differing frame, segmenting long violations at
// the cooldown boundary.
func (e *Engine) SweepExpired(now time.Time) []ppe.ViolationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []ppe.ViolationEvent
	for key, types := range e.active {
		for vt, ev := range types {
			if now.Sub(ev.StartTime) <= e.cooldown {
				continue
			}
			closeEvent(ev, now, ppe.StatusAutoResolved)
			delete(types, vt)
			closed = append(closed, *ev)
			e.log.Warn().
				Str("event_id", ev.EventID).
				Str("camera_id", ev.CameraID).
				Str("person_id", ev.PersonID).
				Str("violation_type", vt).
				Float64("duration_seconds", ev.DurationSeconds).
				Msg("violation auto-resolved by sweeper")
		}
		if len(types) == 0 {
			delete(e.active, key)
		}
	}

	keep := make(map[string]struct{})
	for _, types := range e.active {
		for _, ev := range types {
			keep[ev.PersonID] = struct{}{}
		}
	}
	evicted := e.tracker.Evict(now, e.timeout, keep)
	pruned := e.tracker.Prune(now)
	if evicted > 0 || pruned > 0 {
		e.log.Debug().
			Int("persons_evicted", evicted).
			Int("buckets_pruned", pruned).
			Msg("tracker state reclaimed")
	}

	return closed
}

// TrackedPersons reports the number of live identities, for health
// reporting.
func (e *Engine) TrackedPersons() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.PersonCount("")
}
