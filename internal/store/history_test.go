package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rahul/navcheck/internal/snapshot"
	"github.com/rahul/navcheck/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func passedRun(id string, started time.Time) *verify.Run {
	steps := []verify.Step{
		verify.Goto("http://localhost:3000/en"),
		verify.AssertTitle("Docs"),
	}
	return &verify.Run{
		ID:     id,
		Steps:  steps,
		Result: verify.Result{Passed: true, FailedIndex: -1},
		Records: []verify.StepRecord{
			{Index: 0, Step: steps[0], Started: started, Duration: 120 * time.Millisecond},
			{Index: 1, Step: steps[1], Started: started, Duration: 3 * time.Millisecond},
		},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

func failedRun(id string, started time.Time) *verify.Run {
	steps := []verify.Step{
		verify.Goto("http://localhost:3000/en"),
		verify.AssertTitle("Docs"),
		verify.CaptureScreenshot("never.png"),
	}
	cause := &verify.StepError{Index: 1, Step: steps[1], Kind: verify.AssertionError, Expected: "Docs", Actual: "Home"}
	return &verify.Run{
		ID:     id,
		Steps:  steps,
		Result: verify.Result{FailedIndex: 1, Cause: cause},
		Records: []verify.StepRecord{
			{Index: 0, Step: steps[0], Started: started, Duration: 50 * time.Millisecond},
			{Index: 1, Step: steps[1], Started: started, Duration: 5 * time.Second, Err: cause},
		},
		Snapshot:   &snapshot.Page{URL: "http://localhost:3000/en", Title: "Home", Text: "Welcome"},
		StartedAt:  started,
		FinishedAt: started.Add(6 * time.Second),
	}
}

func TestSaveAndListRuns(t *testing.T) {
	h := openStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := RunMeta{Scenario: "docs", BaseURL: "http://localhost:3000", Driver: "chromedp"}

	require.NoError(t, h.SaveRun(meta, passedRun("run-1", base)))
	require.NoError(t, h.SaveRun(meta, failedRun("run-2", base.Add(time.Hour))))

	runs, err := h.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	latest := runs[0]
	assert.Equal(t, "run-2", latest.ID)
	assert.Equal(t, StatusFailed, latest.Status)
	assert.Equal(t, 1, latest.FailedIndex)
	assert.Equal(t, "AssertionError", latest.FailureKind)
	assert.Contains(t, latest.Cause, `expected "Docs", got "Home"`)
	assert.Contains(t, latest.Snapshot, "Welcome")
	assert.True(t, latest.StartedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, "chromedp", latest.Driver)

	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, StatusPassed, runs[1].Status)
	assert.Equal(t, -1, runs[1].FailedIndex)
	assert.Empty(t, runs[1].Cause)

	limited, err := h.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].ID)
}

func TestGetSteps(t *testing.T) {
	h := openStore(t)
	run := failedRun("run-1", time.Now())
	require.NoError(t, h.SaveRun(RunMeta{Scenario: "docs"}, run))

	steps, err := h.GetSteps("run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2, "steps after the failure are never recorded")

	assert.Equal(t, 0, steps[0].Index)
	assert.Equal(t, "goto", steps[0].Kind)
	assert.Equal(t, StatusPassed, steps[0].Status)
	assert.Equal(t, 50*time.Millisecond, steps[0].Duration)

	assert.Equal(t, StatusFailed, steps[1].Status)
	assert.Contains(t, steps[1].Error, "AssertionError")

	none, err := h.GetSteps("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveRunDuplicateID(t *testing.T) {
	h := openStore(t)
	run := passedRun("dup", time.Now())
	require.NoError(t, h.SaveRun(RunMeta{}, run))
	assert.Error(t, h.SaveRun(RunMeta{}, run))

	steps, err := h.GetSteps("dup")
	require.NoError(t, err)
	assert.Len(t, steps, 2, "failed insert must not leave partial steps")
}

func TestPruneBefore(t *testing.T) {
	h := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.SaveRun(RunMeta{}, passedRun("old", base)))
	require.NoError(t, h.SaveRun(RunMeta{}, passedRun("new", base.Add(48*time.Hour))))

	n, err := h.PruneBefore(base.Add(24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	runs, err := h.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	steps, err := h.GetSteps("old")
	require.NoError(t, err)
	assert.Empty(t, steps)
}
