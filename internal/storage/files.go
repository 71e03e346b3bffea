package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Layout names the per-chain local files under a data directory.
type Layout struct {
	Dir string
}

func (l Layout) CheckpointPath(chain string) string {
	return filepath.Join(l.Dir, chain+"_whale_last_block.json")
}

func (l Layout) HistoryPath(chain string) string {
	return filepath.Join(l.Dir, chain+"_whale_alert_history.json")
}

func (l Layout) SeenPath(chain string) string {
	return filepath.Join(l.Dir, chain+"_whale_user_seen_block.json")
}

// HistoryCollection is the remote collection holding a chain's events.
func HistoryCollection(chain string) string {
	return chain + "_whale_history"
}

// CheckpointCollection is the remote kv collection for checkpoints.
const CheckpointCollection = "whale_checkpoints"

// pathLocks serializes read-modify-write cycles per local file path across
// every store in the process.
var pathLocks = &fileLocks{m: make(map[string]*sync.Mutex)}

type fileLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *fileLocks) lock(path string) func() {
	l.mu.Lock()
	mu, ok := l.m[path]
	if !ok {
		mu = &sync.Mutex{}
		l.m[path] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// readJSON decodes path into v. found is false when the file does not exist.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// writeJSON replaces path wholesale through a temp file and rename.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tmp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
