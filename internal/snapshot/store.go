package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store archives opaque snapshot references handed in by the detector.
// The core never inspects image content; a ref goes in, a stable path
// comes out.
type Store interface {
	Save(cameraID string, ref string, at time.Time) (string, error)
}

// FSStore writes refs under a local directory, one file per snapshot,
// partitioned by camera and day.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Save(cameraID string, ref string, at time.Time) (string, error) {
	if ref == "" {
		return "", nil
	}
	sub := filepath.Join(s.dir, cameraID, at.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	path := filepath.Join(sub, uuid.NewString()+".snap")
	if err := os.WriteFile(path, []byte(ref), 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// NopStore discards refs; used when no snapshot directory is configured.
type NopStore struct{}

func (NopStore) Save(string, string, time.Time) (string, error) { return "", nil }
