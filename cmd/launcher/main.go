// Command launcher is the in-container entrypoint: it resolves the task
// named by --task from the registry, decodes its parameters from the
// PARAMS environment variable, and runs it via pkg/launcher, writing its
// artifacts under --outdir.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mnicolasvega/taskcommander/pkg/launcher"
	"github.com/mnicolasvega/taskcommander/pkg/log"
	"github.com/mnicolasvega/taskcommander/pkg/task"

	_ "github.com/mnicolasvega/taskcommander/tasks"
)

func main() {
	outDir := flag.String("outdir", "/app/out", "output directory mounted from the host")
	taskName := flag.String("task", "", "registry key of the task to run")
	flag.Parse()

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("launcher-entrypoint")

	if *taskName == "" {
		fmt.Fprintln(os.Stderr, "launcher: --task is required")
		os.Exit(1)
	}

	t, ok := task.Lookup(*taskName)
	if !ok {
		logger.Error().Str("task", *taskName).Msg("unknown task key")
		os.Exit(1)
	}

	params, err := loadParams()
	if err != nil {
		logger.Error().Err(err).Msg("failed to decode PARAMS")
		os.Exit(1)
	}
	params["args"] = map[string]string{"outdir": *outDir, "task": *taskName}

	l := launcher.New()
	l.Run(t, params, *outDir)
}

// loadParams decodes the PARAMS environment variable set by the
// Commander's containerised dispatch. An unset variable is treated as
// empty parameters rather than an error, matching a task declared with
// no static params.
func loadParams() (task.Params, error) {
	raw := os.Getenv("PARAMS")
	if raw == "" {
		return task.Params{}, nil
	}
	var params task.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("parse PARAMS: %w", err)
	}
	return params, nil
}
