package tasks

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/mnicolasvega/taskcommander/pkg/task"
)

func init() {
	task.Register("system_monitor", func() task.Task { return &SystemMonitorTask{} })
}

// SystemMonitorTask samples host CPU and memory usage from procfs. It
// runs containerless, since sampling the host's own /proc from inside a
// container would observe the container's namespace instead.
type SystemMonitorTask struct{}

func (t *SystemMonitorTask) Name() string { return "system_monitor" }

func (t *SystemMonitorTask) Interval() (int, bool) { return 15, false }

func (t *SystemMonitorTask) Run(params task.Params) (task.Result, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("system_monitor: open procfs: %w", err)
	}

	stat, err := fs.Stat()
	if err != nil {
		return nil, fmt.Errorf("system_monitor: read stat: %w", err)
	}

	mem, err := fs.Meminfo()
	if err != nil {
		return nil, fmt.Errorf("system_monitor: read meminfo: %w", err)
	}

	result := task.Result{
		"cpu_user":   stat.CPUTotal.User,
		"cpu_system": stat.CPUTotal.System,
		"cpu_idle":   stat.CPUTotal.Idle,
	}
	if mem.MemTotal != nil {
		result["mem_total_kb"] = *mem.MemTotal
	}
	if mem.MemAvailable != nil {
		result["mem_available_kb"] = *mem.MemAvailable
	}
	return result, nil
}

func (t *SystemMonitorTask) TextOutput(result task.Result) string {
	idle, _ := result["cpu_idle"].(float64)
	avail, _ := result["mem_available_kb"].(uint64)
	return fmt.Sprintf("system_monitor: cpu_idle=%.1f mem_available_kb=%d", idle, avail)
}

func (t *SystemMonitorTask) HTMLOutput(result task.Result) string {
	return fmt.Sprintf("<pre>%v</pre>", result)
}

func (t *SystemMonitorTask) Dependencies() task.Dependencies { return task.Dependencies{} }

func (t *SystemMonitorTask) Volumes(task.Params) []task.Volume { return nil }

func (t *SystemMonitorTask) Ports(task.Params) map[int]int { return nil }

func (t *SystemMonitorTask) RequiresConnection() bool { return false }

func (t *SystemMonitorTask) Resources() task.Resources {
	return task.Resources{CPUCores: 0.1, MemoryGBs: 1}
}

func (t *SystemMonitorTask) MaxTimeExpected() int { return 2000 }
