package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ppe-monitor-service/internal/domain/ppe"
)

const DefaultSweepInterval = 60 * time.Second

// ResolvedSink receives auto-resolved events through the same channel
// consumers use for explicit resolutions.
type ResolvedSink func(events []ppe.ViolationEvent)

// Sweeper is the background reconciliation loop: a safety net against
// cameras and persons that stop sending frames. It shares the engine's
// lock via SweepExpired, so a sweep and a frame never interleave.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	clock    Clock
	sink     ResolvedSink
	log      zerolog.Logger

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

func NewSweeper(e *Engine, interval time.Duration, clock Clock, sink ResolvedSink, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		engine:   e,
		interval: interval,
		clock:    clock,
		sink:     sink,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the timer loop. Safe to call once from any goroutine;
// repeat calls are no-ops. Call Close to stop the loop; an in-flight
// sweep is allowed to finish.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single reconciliation pass. Exposed so tests and
// shutdown paths can drive sweeps without the timer.
func (s *Sweeper) SweepOnce() {
	now := s.clock()
	closed := s.engine.SweepExpired(now)
	if len(closed) > 0 {
		s.log.Info().Int("auto_resolved", len(closed)).Msg("sweep closed stale violations")
		if s.sink != nil {
			s.sink(closed)
		}
	}
}

// Close stops the loop and waits for any in-flight sweep to finish.
func (s *Sweeper) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}
