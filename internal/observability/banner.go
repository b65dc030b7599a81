package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
	colorGreen    = "\033[92m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}
var radarIdx = 0

// termMu serializes terminal output so log lines, the pause prompt and the
// status line never interleave.
var termMu sync.Mutex

// ------------------------------------------------------------
// Utility
// ------------------------------------------------------------

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// ------------------------------------------------------------
// TermWriter – a mutex-guarded io.Writer for log output.
// Every log.Println call goes through this writer so it never
// interleaves with the pause prompt.
// ------------------------------------------------------------

type termWriter struct {
	w io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.w.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
// Writes are serialised with the pause prompt via termMu.
func NewTermWriter() io.Writer {
	return termWriter{w: os.Stderr}
}

// ------------------------------------------------------------
// Banner
// ------------------------------------------------------------

const banner = `
    _   _____ _    __________  ________________ __
   / | / /   | |  / / ____/ / / / ____/ ____/ //_/
  /  |/ / /| | | / / /   / /_/ / __/ / /   / ,<
 / /|  / ___ | |/ / /___/ __  / /___/ /___/ /| |
/_/ |_/_/  |_|___/\____/_/ /_/_____/\____/_/ |_|

        >> NAVIGATION VERIFIER <<
`

// PrintBanner writes the centred banner to w.
func PrintBanner(w io.Writer) {
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// ------------------------------------------------------------
// Live Status
// ------------------------------------------------------------

// StatusLine renders the one-line watch mode dashboard.
func StatusLine() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime).Round(time.Second)
	memMB := float64(m.Alloc) / 1024 / 1024

	state, task, last, lastHB := GetStatus()

	icon, stateColor := "💤", colorReset
	switch state {
	case StateRunning:
		icon, stateColor = "🛰️", colorNeonCyan
	case StatePassed:
		icon, stateColor = "🟢", colorGreen
	case StateFailed:
		icon, stateColor = "🔴", colorNeonMag
	}

	// Radar Animation
	radar := " "
	if state == StateRunning {
		radar = radarFrames[radarIdx]
		radarIdx = (radarIdx + 1) % len(radarFrames)
	}

	if task == "" {
		task = "Waiting..."
	}
	if last == "" {
		last = "no runs yet"
	}

	return fmt.Sprintf(
		"%s[%s] %s%s %-7s%s | %s | last: %s %s%s%s [%v] [%.1fMB]",
		colorReset,
		lastHB.Format("15:04:05"),
		stateColor, icon, state, colorReset,
		truncate(task, 32),
		truncate(last, 40),
		colorPurple, radar, colorReset,
		uptime,
		memMB,
	)
}
