package tasks

import (
	"fmt"

	"github.com/mnicolasvega/taskcommander/pkg/task"
)

func init() {
	task.Register("media_ingest", func() task.Task { return &MediaIngestTask{} })
}

// MediaIngestTask is a keep-alive task that mounts a media folder and
// declares an exposed port (8500 unless params set "port"). Its Run only
// reports status "listening" and the port; it does not itself watch the
// folder or serve anything on the port. Once its container is
// dispatched, the Commander leaves it running and never redispatches it.
type MediaIngestTask struct{}

func (t *MediaIngestTask) Name() string { return "media_ingest" }

func (t *MediaIngestTask) Interval() (int, bool) { return 0, true }

func (t *MediaIngestTask) Run(params task.Params) (task.Result, error) {
	port, _ := params["port"].(float64)
	if port == 0 {
		port = 8500
	}
	return task.Result{"status": "listening", "port": port}, nil
}

func (t *MediaIngestTask) TextOutput(result task.Result) string {
	return fmt.Sprintf("media_ingest: %v", result["status"])
}

func (t *MediaIngestTask) HTMLOutput(result task.Result) string {
	return fmt.Sprintf("<p>media_ingest status: %v</p>", result["status"])
}

func (t *MediaIngestTask) Dependencies() task.Dependencies {
	return task.Dependencies{Pip: []string{"watchdog"}}
}

func (t *MediaIngestTask) Volumes(params task.Params) []task.Volume {
	dir, _ := params["media_dir"].(string)
	if dir == "" {
		dir = "/data/media"
	}
	return []task.Volume{{HostPath: dir, Bind: "/data/media", Mode: task.VolumeReadWrite}}
}

func (t *MediaIngestTask) Ports(params task.Params) map[int]int {
	port := 8500
	if p, ok := params["port"].(float64); ok && p != 0 {
		port = int(p)
	}
	return map[int]int{port: port}
}

func (t *MediaIngestTask) RequiresConnection() bool { return true }

func (t *MediaIngestTask) Resources() task.Resources {
	return task.Resources{CPUCores: 0.5, MemoryGBs: 2}
}

func (t *MediaIngestTask) MaxTimeExpected() int { return 0 }
