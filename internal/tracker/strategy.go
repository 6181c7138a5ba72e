package tracker

import (
	"math"

	"ppe-monitor-service/internal/domain/ppe"
)

// MatchStrategy scores how likely two bounding boxes belong to the same
// person. A candidate is accepted when its score reaches Threshold.
type MatchStrategy interface {
	Score(detected, tracked ppe.BBox) float64
	Threshold() float64
}

// IoUStrategy matches on intersection-over-union of axis-aligned boxes.
// This is the primary strategy; greedy best-above-threshold matching is
// a deliberate trade-off for small per-frame person counts, not a
// globally optimal assignment.
type IoUStrategy struct {
	MinIoU float64
}

func (s IoUStrategy) Score(detected, tracked ppe.BBox) float64 {
	return IoU(detected, tracked)
}

func (s IoUStrategy) Threshold() float64 {
	if s.MinIoU <= 0 {
		return DefaultIoUThreshold
	}
	return s.MinIoU
}

// SpatialHashStrategy is the degraded fallback: boxes match when their
// centers land in the same grid cell. Scores are binary.
type SpatialHashStrategy struct {
	CellSize float64
}

func (s SpatialHashStrategy) cell(b ppe.BBox) (int64, int64) {
	size := s.CellSize
	if size <= 0 {
		size = DefaultCellSize
	}
	cx, cy := b.Center()
	return int64(math.Floor(cx / size)), int64(math.Floor(cy / size))
}

func (s SpatialHashStrategy) Score(detected, tracked ppe.BBox) float64 {
	dx, dy := s.cell(detected)
	tx, ty := s.cell(tracked)
	if dx == tx && dy == ty {
		return 1
	}
	return 0
}

func (s SpatialHashStrategy) Threshold() float64 { return 0.5 }

// IoU returns the intersection-over-union of two boxes. Degenerate
// boxes (zero or negative area) score 0 against everything.
func IoU(a, b ppe.BBox) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}
	ix1 := math.Max(a[0], b[0])
	iy1 := math.Max(a[1], b[1])
	ix2 := math.Min(a[2], b[2])
	iy2 := math.Min(a[3], b[3])
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	return inter / (areaA + areaB - inter)
}
