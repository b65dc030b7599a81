package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/navcheck/internal/verify"
)

// Messenger defines the interface for notification gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Send sends a message to a specific chat or channel
	Send(chatID string, text string) error
}

// Target is one configured destination for run summaries.
type Target struct {
	Name      string
	ChatID    string
	Messenger Messenger
}

// Broadcast sends text to every target and joins the failures.
func Broadcast(targets []Target, text string) error {
	var errs []error
	for _, t := range targets {
		if err := t.Messenger.Send(t.ChatID, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// FormatSummary renders a Markdown summary of a finished run.
func FormatSummary(scenario string, run *verify.Run) string {
	var b strings.Builder
	if run.Passed() {
		fmt.Fprintf(&b, "✅ *%s passed*\n", scenario)
	} else {
		fmt.Fprintf(&b, "❌ *%s failed*\n", scenario)
	}
	fmt.Fprintf(&b, "Run `%s` · %d/%d steps · %s\n",
		run.ID, len(run.Records), len(run.Steps), run.Duration().Round(time.Millisecond))

	if cause := run.Result.Cause; cause != nil {
		fmt.Fprintf(&b, "\nStep %d `%s`\n%s", cause.Index, cause.Step, cause.Kind)
		switch {
		case cause.Kind == verify.AssertionError && cause.Err == nil:
			fmt.Fprintf(&b, ": expected `%s`, got `%s`", cause.Expected, cause.Actual)
		case cause.Err != nil:
			fmt.Fprintf(&b, ": %s", cause.Err)
		}
		b.WriteString("\n")
	}
	if run.Snapshot != nil && run.Snapshot.Excerpt != "" {
		fmt.Fprintf(&b, "\nPage: %s\n> %s\n", run.Snapshot.URL, run.Snapshot.Excerpt)
	}
	return b.String()
}
