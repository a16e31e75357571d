// Package progress publishes run state for observers: a best-effort JSON
// snapshot file and an optional websocket dashboard.
package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"index-pump/internal/logger"
)

// TableProgress is one table's entry in the snapshot file.
type TableProgress struct {
	TableKey     string `json:"table_key"`
	Mode         string `json:"mode,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Status       string `json:"status"`
	RowsUpserted int    `json:"rows_upserted,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Snapshot is the full progress document written after each table event.
type Snapshot struct {
	RunID     string          `json:"run_id"`
	Phase     string          `json:"phase"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Tables    []TableProgress `json:"tables"`
}

// FileWriter maintains a progress snapshot on disk. Every mutation rewrites
// the whole file via a temp-file rename. Write failures are swallowed and
// logged at Debug so observers can never break a run.
type FileWriter struct {
	mu   sync.Mutex
	path string
	snap Snapshot
}

// NewFileWriter starts a snapshot for runID at path.
func NewFileWriter(path, runID string) *FileWriter {
	return &FileWriter{
		path: path,
		snap: Snapshot{
			RunID:     runID,
			Phase:     "running",
			StartedAt: time.Now().UTC(),
		},
	}
}

// SetPhase updates the run phase and flushes.
func (w *FileWriter) SetPhase(phase string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap.Phase = phase
	w.flushLocked()
}

// UpdateTable upserts one table's entry (keyed by TableKey) and flushes.
func (w *FileWriter) UpdateTable(tp TableProgress) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.snap.Tables {
		if w.snap.Tables[i].TableKey == tp.TableKey {
			w.snap.Tables[i] = tp
			w.flushLocked()
			return
		}
	}
	w.snap.Tables = append(w.snap.Tables, tp)
	w.flushLocked()
}

func (w *FileWriter) flushLocked() {
	w.snap.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(w.snap, "", "  ")
	if err != nil {
		logger.Debugf("progress snapshot marshal failed: %v", err)
		return
	}
	tmp := w.path + ".tmp"
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Debugf("progress snapshot dir failed: %v", err)
			return
		}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Debugf("progress snapshot write failed: %v", err)
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		logger.Debugf("progress snapshot rename failed: %v", err)
	}
}
