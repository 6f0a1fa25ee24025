// Package launcher runs a task.Task in-process with timing
// instrumentation and writes its three output artifacts, used both by
// the containerless dispatch path and by the in-container entrypoint
// (cmd/launcher).
//
// A panic or error from the task body degrades to a logged line; it
// never aborts the scheduler, and the task is simply considered for
// dispatch again on its next eligible tick.
package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnicolasvega/taskcommander/pkg/log"
	"github.com/mnicolasvega/taskcommander/pkg/task"
)

// LogEntry is one diagnostic line recorded during a Launcher run, kept
// in memory alongside the structured output rather than written to a
// fourth artifact file.
type LogEntry struct {
	At      time.Time
	Message string
}

// Launcher runs a single task invocation and persists its artifacts
// under an out-dir.
type Launcher struct {
	logger zerolog.Logger
	// buffer collects the launcher's own diagnostic lines for the
	// duration of one run, mirroring the original's in-memory timestamped
	// log map; it is not itself persisted, only surfaced through Logs.
	buffer []LogEntry
}

// New constructs a Launcher.
func New() *Launcher {
	return &Launcher{logger: log.WithComponent("launcher")}
}

// Logs returns the diagnostic lines recorded during the most recent Run.
func (l *Launcher) Logs() []LogEntry {
	return l.buffer
}

func (l *Launcher) record(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.buffer = append(l.buffer, LogEntry{At: time.Now(), Message: msg})
	l.logger.Debug().Msg(msg)
}

// Run executes t with params, times it, injects time_elapsed_ms and
// time_finish_ms into the structured result, and writes the three output
// artifacts. Any panic or error from the task body is caught and logged;
// the run is then treated as complete — artifacts for it may be partial
// or absent, and the caller schedules t normally on its next tick.
func (l *Launcher) Run(t task.Task, params task.Params, outDir string) {
	l.buffer = nil
	defer func() {
		if r := recover(); r != nil {
			l.record("recovered from panic in task %s: %v", t.Name(), r)
		}
	}()

	if err := l.createDirs(t, outDir); err != nil {
		l.record("failed to create output directories for %s: %v", t.Name(), err)
		return
	}

	l.record("executing %s - params: %v", t.Name(), params)

	start := time.Now()
	result, err := t.Run(params)
	if err != nil {
		l.record("task %s returned error: %v", t.Name(), err)
		return
	}
	elapsed := time.Since(start)

	if result == nil {
		result = task.Result{}
	}
	result["time_elapsed_ms"] = float64(elapsed.Microseconds()) / 1000.0
	result["time_finish_ms"] = float64(time.Now().UnixNano()) / 1e6

	if max := t.MaxTimeExpected(); max > 0 && elapsed.Milliseconds() > int64(max) {
		l.logger.Warn().Str("task", t.Name()).
			Int64("elapsed_ms", elapsed.Milliseconds()).
			Int("max_time_expected_ms", max).
			Msg("task exceeded its expected duration")
	}

	textOutput := t.TextOutput(result)
	htmlOutput := t.HTMLOutput(result)

	if err := l.writeLog(outDir, t.Name(), result); err != nil {
		l.record("failed to write output.log for %s: %v", t.Name(), err)
	}
	if err := l.writeText(outDir, t.Name(), textOutput); err != nil {
		l.record("failed to write output.txt for %s: %v", t.Name(), err)
	}
	if err := l.writeHTML(outDir, t.Name(), htmlOutput); err != nil {
		l.record("failed to write out.html for %s: %v", t.Name(), err)
	}
}

func (l *Launcher) createDirs(t task.Task, outDir string) error {
	taskDir := filepath.Join(outDir, "tasks", t.Name())
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(taskDir, "container"), 0755)
}

func (l *Launcher) writeLog(outDir, name string, result task.Result) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return appendLine(filepath.Join(outDir, "output.log"), fmt.Sprintf("%s: %s\n", name, encoded))
}

func (l *Launcher) writeText(outDir, name, text string) error {
	return appendLine(filepath.Join(outDir, "output.txt"), fmt.Sprintf("%s: %s\n", name, text))
}

func (l *Launcher) writeHTML(outDir, name, html string) error {
	path := filepath.Join(outDir, "tasks", name, "out.html")
	return os.WriteFile(path, []byte(html), 0644)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}
