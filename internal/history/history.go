// Package history keeps the append-only per-task run log. After a crash
// the orchestrator replays it to tell a task that was mid-execution
// (InProgress with no done record) from one that finished but whose
// status write was lost.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const logFileName = "runs.log"

// Run events.
const (
	EventStarted = "started"
	EventDone    = "done"
	EventFailed  = "failed"
)

// RunRecord is one append-only history entry.
type RunRecord struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Log appends run records to a JSON Lines file.
type Log struct {
	path string
}

// NewLog creates a run log under the .claudepm directory.
func NewLog(baseDir string) *Log {
	return &Log{path: filepath.Join(baseDir, logFileName)}
}

// Append writes one record. The file is opened in append mode so prior
// history is never rewritten.
func (l *Log) Append(taskID, event, detail string) error {
	record := RunRecord{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Event:     event,
		Timestamp: time.Now(),
		Detail:    detail,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append run record: %w", err)
	}
	return nil
}

// Started logs a started event for the task.
func (l *Log) Started(taskID, detail string) error {
	return l.Append(taskID, EventStarted, detail)
}

// Done logs a done event for the task.
func (l *Log) Done(taskID, detail string) error {
	return l.Append(taskID, EventDone, detail)
}

// Failed logs a failed event for the task.
func (l *Log) Failed(taskID, detail string) error {
	return l.Append(taskID, EventFailed, detail)
}

// Load reads all records in order. Corrupt lines (from a torn write at
// crash time) are skipped rather than failing the whole read.
func (l *Log) Load() ([]RunRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	var records []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var record RunRecord
		if err := json.Unmarshal(sc.Bytes(), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}
	return records, nil
}

// HasDone reports whether the task has a done record.
func (l *Log) HasDone(taskID string) (bool, error) {
	records, err := l.Load()
	if err != nil {
		return false, err
	}
	for _, record := range records {
		if record.TaskID == taskID && record.Event == EventDone {
			return true, nil
		}
	}
	return false, nil
}
