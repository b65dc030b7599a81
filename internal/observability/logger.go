package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rahul/navcheck/internal/snapshot"
	"github.com/rahul/navcheck/internal/verify"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRunStart  EventType = "run_start"
	EventTypeStep      EventType = "step"
	EventTypeRunResult EventType = "run_result"
	EventTypeSnapshot  EventType = "snapshot"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeNotify    EventType = "notify"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Scenario  string    `json:"scenario,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	runLog  string
	maxSize int64
}

func NewLogger(logDir string) *Logger {
	if logDir == "" {
		logDir = "logs"
	}
	return &Logger{
		out:     os.Stdout,
		runLog:  filepath.Join(logDir, "runs.jsonl"),
		maxSize: 10 * 1024 * 1024, // 10MB
	}
}

// SetOutput redirects console events. A nil writer silences them; the run
// log file is still written.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// Log emits a structured JSON event to the console writer.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		fmt.Fprintln(l.out, string(data))
	}

	if evt.Type != EventTypeHeartbeat {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.runLog), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.runLog)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.runLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.runLog + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.runLog, oldPath)
}

// Helper methods for common events

func (l *Logger) LogRunStart(scenario string, steps int) {
	l.Log(Event{
		Type:     EventTypeRunStart,
		Scenario: scenario,
		Data:     map[string]any{"steps": steps},
	})
}

// StepObserver returns a verify.Observer that logs every executed step.
func (l *Logger) StepObserver(scenario string) verify.Observer {
	return func(_ context.Context, rec verify.StepRecord) {
		data := map[string]any{
			"index":       rec.Index,
			"kind":        rec.Step.Kind,
			"detail":      rec.Step.Detail(),
			"duration_ms": rec.Duration.Milliseconds(),
			"status":      "passed",
		}
		if rec.Err != nil {
			data["status"] = "failed"
			data["error_kind"] = rec.Err.Kind
			data["error"] = rec.Err.Error()
		}
		l.Log(Event{Type: EventTypeStep, Scenario: scenario, Data: data})
	}
}

func (l *Logger) LogRunResult(scenario string, run *verify.Run) {
	data := map[string]any{
		"result":      run.Result.String(),
		"steps_run":   len(run.Records),
		"steps_total": len(run.Steps),
		"duration_ms": run.Duration().Milliseconds(),
	}
	if err := run.Err(); err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeRunResult, RunID: run.ID, Scenario: scenario, Data: data})
}

func (l *Logger) LogSnapshot(runID string, page *snapshot.Page) {
	if page == nil {
		return
	}
	l.Log(Event{
		Type:  EventTypeSnapshot,
		RunID: runID,
		Data:  page,
	})
}

func (l *Logger) LogNotify(runID, target string, err error) {
	data := map[string]string{"target": target, "status": "sent"}
	if err != nil {
		data["status"] = "failed"
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeNotify, RunID: runID, Data: data})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
