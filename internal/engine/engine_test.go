package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ppe-monitor-service/internal/domain/ppe"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// fakeClock steps deterministically; sweeps and frames share it.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(clock *fakeClock) *Engine {
	return New(Options{}, clock.Now, zerolog.Nop())
}

func detection(at time.Time, labels ...string) ppe.Detection {
	return ppe.Detection{
		CameraID:  "cam-1",
		CompanyID: "acme",
		BBox:      ppe.BBox{0, 0, 100, 200},
		Labels:    labels,
		At:        at,
	}
}

func TestStartSteadyResolve(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	// Frame 1: violation appears.
	person1, started, resolved := e.Process(detection(base, "no_helmet"))
	if len(started) != 1 || len(resolved) != 0 {
		t.Fatalf("frame 1: expected 1 started / 0 resolved, got %d / %d", len(started), len(resolved))
	}
	ev := started[0]
	if ev.ViolationType != ppe.TypeNoHelmet {
		t.Errorf("expected type no_helmet, got %s", ev.ViolationType)
	}
	if ev.Status != ppe.StatusActive {
		t.Errorf("expected status active, got %s", ev.Status)
	}
	if ev.Severity != ppe.SeverityCritical {
		t.Errorf("expected severity critical, got %s", ev.Severity)
	}

	// Frame 2: steady state, nothing emitted.
	person2, started, resolved := e.Process(detection(base.Add(time.Second), "no_helmet"))
	if person2 != person1 {
		t.Fatalf("identity broke between frames: %s then %s", person1, person2)
	}
	if len(started) != 0 || len(resolved) != 0 {
		t.Fatalf("frame 2: expected steady state, got %d started / %d resolved", len(started), len(resolved))
	}

	// Frame 3: violation cleared.
	_, started, resolved = e.Process(detection(base.Add(5 * time.Second)))
	if len(started) != 0 || len(resolved) != 1 {
		t.Fatalf("frame 3: expected 0 started / 1 resolved, got %d / %d", len(started), len(resolved))
	}
	closed := resolved[0]
	if closed.EventID != ev.EventID {
		t.Errorf("resolved a different event: %s vs %s", closed.EventID, ev.EventID)
	}
	if closed.Status != ppe.StatusResolved {
		t.Errorf("expected status resolved, got %s", closed.Status)
	}
	if closed.DurationSeconds != 5 {
		t.Errorf("expected duration 5s, got %v", closed.DurationSeconds)
	}
	if closed.EndTime == nil || !closed.EndTime.Equal(base.Add(5*time.Second)) {
		t.Errorf("unexpected end time %v", closed.EndTime)
	}
}

func TestIdempotentSteadyState(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	e.Process(detection(base, "no_vest", "no_helmet"))
	_, started, resolved := e.Process(detection(base.Add(time.Second), "no_vest", "no_helmet"))
	if len(started) != 0 || len(resolved) != 0 {
		t.Fatalf("unchanged label set must emit nothing, got %d started / %d resolved", len(started), len(resolved))
	}
}

func TestSingleActivePerType(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	for i := 0; i < 10; i++ {
		e.Process(detection(base.Add(time.Duration(i)*time.Second), "no_vest"))
	}

	active := e.ActiveViolations("cam-1")
	if len(active) != 1 {
		t.Fatalf("expected exactly one active event, got %d", len(active))
	}
}

func TestLabelNormalizationAndSeverity(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	_, started, _ := e.Process(detection(base, "No Helmet", "no-vest", "no_gloves"))
	if len(started) != 3 {
		t.Fatalf("expected 3 started events, got %d", len(started))
	}

	bySeverity := make(map[string]string)
	for _, ev := range started {
		bySeverity[ev.ViolationType] = ev.Severity
	}
	if bySeverity[ppe.TypeNoHelmet] != ppe.SeverityCritical {
		t.Errorf("no_helmet: expected critical, got %s", bySeverity[ppe.TypeNoHelmet])
	}
	if bySeverity[ppe.TypeNoVest] != ppe.SeverityWarning {
		t.Errorf("no_vest: expected warning, got %s", bySeverity[ppe.TypeNoVest])
	}
	// Unknown labels pass through verbatim with default severity.
	if bySeverity["no_gloves"] != ppe.SeverityInfo {
		t.Errorf("no_gloves: expected info, got %s", bySeverity["no_gloves"])
	}
}

func TestPartialResolve(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	e.Process(detection(base, "no_helmet", "no_vest"))
	_, started, resolved := e.Process(detection(base.Add(2*time.Second), "no_helmet"))
	if len(started) != 0 {
		t.Fatalf("expected no new events, got %d", len(started))
	}
	if len(resolved) != 1 || resolved[0].ViolationType != ppe.TypeNoVest {
		t.Fatalf("expected no_vest resolved, got %+v", resolved)
	}

	active := e.ActiveViolations("")
	if len(active) != 1 || active[0].ViolationType != ppe.TypeNoHelmet {
		t.Fatalf("expected no_helmet still active, got %+v", active)
	}
}

func TestNewOccurrenceGetsNewEventID(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	_, started1, _ := e.Process(detection(base, "no_helmet"))
	e.Process(detection(base.Add(time.Second)))
	_, started2, _ := e.Process(detection(base.Add(2*time.Second), "no_helmet"))

	if len(started1) != 1 || len(started2) != 1 {
		t.Fatal("expected one started event per occurrence")
	}
	if started1[0].EventID == started2[0].EventID {
		t.Fatal("a closed event must not be reopened; a new occurrence needs a new event_id")
	}
}

func TestActiveViolationsCameraFilter(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	d1 := detection(base, "no_helmet")
	d2 := detection(base, "no_vest")
	d2.CameraID = "cam-2"
	e.Process(d1)
	e.Process(d2)

	if got := len(e.ActiveViolations("")); got != 2 {
		t.Fatalf("expected 2 active events total, got %d", got)
	}
	cam1 := e.ActiveViolations("cam-1")
	if len(cam1) != 1 || cam1[0].CameraID != "cam-1" {
		t.Fatalf("camera filter broken: %+v", cam1)
	}
}

func TestAttachSnapshotCarriesThrough(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	personID, started, _ := e.Process(detection(base, "no_helmet"))
	e.AttachSnapshot("cam-1", personID, ppe.TypeNoHelmet, "snaps/a.snap")

	active := e.ActiveViolations("cam-1")
	if len(active) != 1 || active[0].SnapshotPath != "snaps/a.snap" {
		t.Fatalf("active copy missing snapshot path: %+v", active)
	}

	_, _, resolved := e.Process(detection(base.Add(2 * time.Second)))
	if len(resolved) != 1 || resolved[0].SnapshotPath != "snaps/a.snap" {
		t.Fatalf("resolved copy missing snapshot path: %+v", resolved)
	}

	// Attaching to an event that already left the active table is a no-op.
	e.AttachSnapshot("cam-1", personID, ppe.TypeNoHelmet, "snaps/b.snap")
	if started[0].EventID == "" {
		t.Fatal("fixture broken")
	}
}

func TestSweepAutoResolvedKeepsSnapshot(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	personID, _, _ := e.Process(detection(base, "no_vest"))
	e.AttachSnapshot("cam-1", personID, ppe.TypeNoVest, "snaps/a.snap")

	closed := e.SweepExpired(base.Add(2 * time.Minute))
	if len(closed) != 1 || closed[0].SnapshotPath != "snaps/a.snap" {
		t.Fatalf("auto-resolved copy missing snapshot path: %+v", closed)
	}
}

func TestSweepExpiredForceCloses(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	_, started, _ := e.Process(detection(base, "no_helmet"))
	ev := started[0]

	// Within the cooldown window nothing is touched.
	if closed := e.SweepExpired(base.Add(30 * time.Second)); len(closed) != 0 {
		t.Fatalf("sweep before cooldown closed %d events", len(closed))
	}

	closed := e.SweepExpired(base.Add(90 * time.Second))
	if len(closed) != 1 {
		t.Fatalf("expected 1 auto-resolved event, got %d", len(closed))
	}
	if closed[0].EventID != ev.EventID {
		t.Errorf("sweep closed wrong event: %s", closed[0].EventID)
	}
	if closed[0].Status != ppe.StatusAutoResolved {
		t.Errorf("expected status auto_resolved, got %s", closed[0].Status)
	}
	if closed[0].DurationSeconds != 90 {
		t.Errorf("expected duration 90s, got %v", closed[0].DurationSeconds)
	}
	if len(e.ActiveViolations("")) != 0 {
		t.Fatal("active table not emptied after sweep")
	}
}

// A violation outlasting the cooldown is segmented: the sweeper closes
// the first interval and the still-present condition opens a new event
// on the next differing frame.
func TestLongViolationSegments(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	_, started1, _ := e.Process(detection(base, "no_helmet"))
	e.SweepExpired(base.Add(61 * time.Second))

	_, started2, _ := e.Process(detection(base.Add(62*time.Second), "no_helmet"))
	if len(started2) != 1 {
		t.Fatalf("expected a new segment to start, got %d events", len(started2))
	}
	if started2[0].EventID == started1[0].EventID {
		t.Fatal("segment reused the auto-resolved event id")
	}
}

func TestSweepEvictsIdlePersonsButNotViolators(t *testing.T) {
	clock := &fakeClock{now: base}
	e := newTestEngine(clock)

	// Person A holds an active violation; person B is clean.
	violator := detection(base, "no_helmet")
	clean := detection(base)
	clean.BBox = ppe.BBox{500, 0, 600, 200}
	personA, _, _ := e.Process(violator)
	personB, _, _ := e.Process(clean)
	if personA == personB {
		t.Fatal("fixture broken: expected two identities")
	}

	// 10 s later both are past person_timeout, but only A owns a violation.
	e.SweepExpired(base.Add(10 * time.Second))

	next := detection(base.Add(10 * time.Second))
	next.BBox = ppe.BBox{500, 0, 600, 200}
	personB2, _, _ := e.Process(next)
	if personB2 == personB {
		t.Fatal("idle person survived eviction")
	}

	personA2, started, _ := e.Process(detection(base.Add(10*time.Second), "no_helmet"))
	if personA2 != personA {
		t.Fatal("violating person was evicted")
	}
	if len(started) != 0 {
		t.Fatal("ongoing violation restarted after sweep")
	}
}
