package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mnicolasvega/taskcommander/pkg/task"
)

func init() {
	task.Register("directory_watch", func() task.Task { return &DirectoryWatchTask{} })
}

// DirectoryWatchTask scans a watched directory for files newer than its
// last scan and reports how many it found. It has no install-time
// dependencies, so it is dispatched without outbound network access.
type DirectoryWatchTask struct{}

func (t *DirectoryWatchTask) Name() string { return "directory_watch" }

func (t *DirectoryWatchTask) Interval() (int, bool) { return 30, false }

func (t *DirectoryWatchTask) Run(params task.Params) (task.Result, error) {
	dir, _ := params["watch_dir"].(string)
	if dir == "" {
		dir = "/data/watch"
	}
	since := time.Now().Add(-30 * time.Second)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("directory_watch: read %s: %w", dir, err)
	}

	var fresh []string
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(since) {
			fresh = append(fresh, filepath.Join(dir, entry.Name()))
		}
	}

	return task.Result{
		"watched_dir": dir,
		"new_files":   fresh,
		"count":       len(fresh),
	}, nil
}

func (t *DirectoryWatchTask) TextOutput(result task.Result) string {
	count, _ := result["count"].(int)
	return fmt.Sprintf("directory_watch: %d new file(s)", count)
}

func (t *DirectoryWatchTask) HTMLOutput(result task.Result) string {
	count, _ := result["count"].(int)
	dir, _ := result["watched_dir"].(string)
	return fmt.Sprintf("<p><strong>%s</strong>: %d new file(s)</p>", dir, count)
}

func (t *DirectoryWatchTask) Dependencies() task.Dependencies { return task.Dependencies{} }

func (t *DirectoryWatchTask) Volumes(params task.Params) []task.Volume {
	dir, _ := params["watch_dir"].(string)
	if dir == "" {
		dir = "/data/watch"
	}
	return []task.Volume{{HostPath: dir, Bind: "/data/watch", Mode: task.VolumeReadOnly}}
}

func (t *DirectoryWatchTask) Ports(task.Params) map[int]int { return nil }

func (t *DirectoryWatchTask) RequiresConnection() bool { return false }

func (t *DirectoryWatchTask) Resources() task.Resources {
	return task.Resources{CPUCores: 0.25, MemoryGBs: 1}
}

func (t *DirectoryWatchTask) MaxTimeExpected() int { return 5000 }
