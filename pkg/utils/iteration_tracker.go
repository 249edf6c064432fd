package utils

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// IterationEvent is one line of the iteration trace.
type IterationEvent struct {
	RunID              string  `json:"run_id"`
	Iteration          int     `json:"iteration"`
	Conflicts          uint64  `json:"conflicts"`
	CandidateConflicts uint64  `json:"candidate_conflicts"`
	LogPCandidate      float64 `json:"log_p_candidate"`
	LogPCurrent        float64 `json:"log_p_current"`
	Accepted           bool    `json:"accepted"`
	Lambda             float64 `json:"lambda"`
	Timestamp          int64   `json:"timestamp"`
}

// IterationTracker appends one JSON object per iteration to a file. A nil
// tracker ignores every call.
type IterationTracker struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	runID   string
}

// NewIterationTracker creates (or truncates) filename.
func NewIterationTracker(filename, runID string) (*IterationTracker, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	return &IterationTracker{
		file:    file,
		encoder: json.NewEncoder(file),
		runID:   runID,
	}, nil
}

// Log writes ev, stamping the run id and the time.
func (t *IterationTracker) Log(ev IterationEvent) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ev.RunID = t.runID
	ev.Timestamp = time.Now().Unix()
	return t.encoder.Encode(ev)
}

// Close flushes and closes the trace file.
func (t *IterationTracker) Close() error {
	if t == nil || t.file == nil {
		return nil
	}
	return t.file.Close()
}
