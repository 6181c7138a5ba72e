package tracker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ppe-monitor-service/internal/domain/ppe"
)

const (
	DefaultIoUThreshold = 0.3
	DefaultCellSize     = 120

	// Detections within the same 100 ms bucket are treated as one frame
	// for match exclusivity. The detector input carries no frame
	// sequence number, so the bucket stands in for it.
	frameBucket = 100 * time.Millisecond

	// Bucket bookkeeping older than this is discarded by Prune.
	bucketRetention = 10 * time.Second
)

// Tracker associates per-frame person detections with previously seen
// identities, one table per camera. It is NOT safe for concurrent use;
// the caller (the violation engine) serializes access under its own
// lock so the tracker, the active-violation table, and the sweeper all
// agree on one view of the world.
type Tracker struct {
	strategy MatchStrategy
	cameras  map[string]map[string]*ppe.TrackedPerson

	// matched[camera+bucket] holds identities already claimed within
	// that frame bucket so two detections in one frame never collapse
	// onto the same person.
	matched map[string]map[string]struct{}
}

func New(strategy MatchStrategy) *Tracker {
	if strategy == nil {
		strategy = IoUStrategy{MinIoU: DefaultIoUThreshold}
	}
	return &Tracker{
		strategy: strategy,
		cameras:  make(map[string]map[string]*ppe.TrackedPerson),
		matched:  make(map[string]map[string]struct{}),
	}
}

func bucketKey(cameraID string, now time.Time) string {
	return fmt.Sprintf("%s|%d", cameraID, now.UnixMilli()/frameBucket.Milliseconds())
}

// Match resolves a detection to a person identity. The best-scoring
// unclaimed candidate above the strategy threshold wins; otherwise a
// new identity is allocated. Malformed boxes score 0 everywhere and
// therefore always allocate.
func (t *Tracker) Match(cameraID string, bbox ppe.BBox, now time.Time) string {
	persons := t.cameras[cameraID]
	if persons == nil {
		persons = make(map[string]*ppe.TrackedPerson)
		t.cameras[cameraID] = persons
	}

	bk := bucketKey(cameraID, now)
	claimed := t.matched[bk]
	if claimed == nil {
		claimed = make(map[string]struct{})
		t.matched[bk] = claimed
	}

	var best *ppe.TrackedPerson
	bestScore := 0.0
	for _, p := range persons {
		if _, taken := claimed[p.ID]; taken {
			continue
		}
		if score := t.strategy.Score(bbox, p.LastBBox); score > bestScore {
			best, bestScore = p, score
		}
	}

	if best != nil && bestScore >= t.strategy.Threshold() {
		best.LastBBox = bbox
		best.LastSeen = now
		claimed[best.ID] = struct{}{}
		return best.ID
	}

	p := &ppe.TrackedPerson{ID: uuid.NewString(), LastBBox: bbox, LastSeen: now}
	persons[p.ID] = p
	claimed[p.ID] = struct{}{}
	return p.ID
}

// Evict removes identities unseen for longer than timeout, except those
// in keep (persons still owning an active violation). Returns the
// number of identities removed.
func (t *Tracker) Evict(now time.Time, timeout time.Duration, keep map[string]struct{}) int {
	removed := 0
	for cameraID, persons := range t.cameras {
		for id, p := range persons {
			if _, protected := keep[id]; protected {
				continue
			}
			if now.Sub(p.LastSeen) > timeout {
				delete(persons, id)
				removed++
			}
		}
		if len(persons) == 0 {
			delete(t.cameras, cameraID)
		}
	}
	return removed
}

// Prune discards frame-exclusivity buckets older than the retention
// window so the matched table stays bounded.
func (t *Tracker) Prune(now time.Time) int {
	cutoff := now.Add(-bucketRetention).UnixMilli() / frameBucket.Milliseconds()
	removed := 0
	for key := range t.matched {
		sep := strings.LastIndexByte(key, '|')
		bucket, err := strconv.ParseInt(key[sep+1:], 10, 64)
		if sep < 0 || err != nil || bucket < cutoff {
			delete(t.matched, key)
			removed++
		}
	}
	return removed
}

// PersonCount reports tracked identities on one camera, or all cameras
// when cameraID is empty.
func (t *Tracker) PersonCount(cameraID string) int {
	if cameraID != "" {
		return len(t.cameras[cameraID])
	}
	n := 0
	for _, persons := range t.cameras {
		n += len(persons)
	}
	return n
}
