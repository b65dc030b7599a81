package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/navcheck/internal/verify"
)

type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StatePassed  State = "PASSED"
	StateFailed  State = "FAILED"
)

type SystemStatus struct {
	mu            sync.RWMutex
	State         State
	ActiveTask    string
	LastResult    string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	State:         StateIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(state State, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.State = state
	globalStatus.ActiveTask = task
}

// SetLastResult records the outcome of the most recent run.
func SetLastResult(scenario string, run *verify.Run) {
	state := StatePassed
	if !run.Passed() {
		state = StateFailed
	}
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.State = state
	globalStatus.ActiveTask = ""
	globalStatus.LastResult = fmt.Sprintf("%s %s", scenario, run.Result)
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (State, string, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.State, globalStatus.ActiveTask, globalStatus.LastResult, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}

// StatusObserver keeps the active task pointed at the step that just ran.
func StatusObserver(scenario string) verify.Observer {
	return func(_ context.Context, rec verify.StepRecord) {
		SetStatus(StateRunning, fmt.Sprintf("%s #%d %s", scenario, rec.Index, rec.Step.Kind))
		Heartbeat()
	}
}
