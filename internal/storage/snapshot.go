package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"microflow/internal/domain"
	"microflow/internal/hawkes"
)

// Snapshot is a point-in-time capture of the fitted model state. On
// restart the engine warm-starts from the snapshot instead of running
// with default parameters until the first refit cycle completes.
type Snapshot struct {
	Seq    uint64 `json:"seq"` // Last processed sequence number
	TsUnix int64  `json:"ts"`  // Snapshot creation timestamp (Unix seconds)

	// HawkesParams holds the per-order-type diagonal parameters,
	// keyed by order type name.
	HawkesParams map[string]hawkes.Params `json:"hawkes_params"`
}

// SnapshotManager handles saving and loading snapshots.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a new snapshot manager.
// dir: directory to store snapshot files.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// CreateSnapshot captures the fitted parameters at seq.
func CreateSnapshot(seq uint64, params [domain.NumOrderTypes]hawkes.Params) *Snapshot {
	m := make(map[string]hawkes.Params, len(params))
	for i, p := range params {
		m[domain.OrderType(i).String()] = p
	}
	return &Snapshot{
		Seq:          seq,
		TsUnix:       time.Now().Unix(),
		HawkesParams: m,
	}
}

// Diagonal converts the snapshot back to the per-type parameter array.
// Missing types come back as zero values, which restore skips.
func (s *Snapshot) Diagonal() [domain.NumOrderTypes]hawkes.Params {
	var out [domain.NumOrderTypes]hawkes.Params
	for i := range out {
		out[i] = s.HawkesParams[domain.OrderType(i).String()]
	}
	return out
}

// Save writes a snapshot to disk.
func (sm *SnapshotManager) Save(snap *Snapshot) error {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	filename := fmt.Sprintf("snapshot_%d_%d.json", snap.Seq, snap.TsUnix)
	path := filepath.Join(sm.dir, filename)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	slog.Info("Snapshot saved",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", path))

	return nil
}

// LoadLatest loads the most recent snapshot from disk.
// Returns nil if no snapshot exists.
func (sm *SnapshotManager) LoadLatest() (*Snapshot, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No snapshots yet
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	var latestPath string
	var latestSeq uint64

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		var seq uint64
		var ts int64
		_, err := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.json", &seq, &ts)
		if err != nil {
			continue // Not a snapshot file
		}

		if seq > latestSeq {
			latestSeq = seq
			latestPath = filepath.Join(sm.dir, entry.Name())
		}
	}

	if latestPath == "" {
		return nil, nil // No snapshots found
	}

	data, err := os.ReadFile(latestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	slog.Info("Snapshot loaded",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", latestPath))

	return &snap, nil
}

// Cleanup removes old snapshots, keeping only the latest N.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		return err
	}

	type snapFile struct {
		path string
		seq  uint64
	}
	var files []snapFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq uint64
		var ts int64
		if _, err := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.json", &seq, &ts); err == nil {
			files = append(files, snapFile{
				path: filepath.Join(sm.dir, entry.Name()),
				seq:  seq,
			})
		}
	}

	if len(files) <= keepCount {
		return nil
	}

	// Simple bubble sort (small N)
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			if files[j].seq > files[i].seq {
				files[i], files[j] = files[j], files[i]
			}
		}
	}

	for i := keepCount; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", files[i].path))
		} else {
			slog.Info("Removed old snapshot", slog.String("path", files[i].path))
		}
	}

	return nil
}
