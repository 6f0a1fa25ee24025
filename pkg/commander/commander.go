// Package commander implements the scheduling loop: a deterministic
// one-second poll over declared tasks with partial-failure isolation
// between them, a ticker-driven loop with cooperative shutdown, and this
// domain's should-run rule, dispatch contract, and reaping sequence.
package commander

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnicolasvega/taskcommander/pkg/build"
	"github.com/mnicolasvega/taskcommander/pkg/cleaner"
	"github.com/mnicolasvega/taskcommander/pkg/config"
	"github.com/mnicolasvega/taskcommander/pkg/health"
	"github.com/mnicolasvega/taskcommander/pkg/launcher"
	"github.com/mnicolasvega/taskcommander/pkg/log"
	"github.com/mnicolasvega/taskcommander/pkg/metrics"
	"github.com/mnicolasvega/taskcommander/pkg/runtime"
	"github.com/mnicolasvega/taskcommander/pkg/sink"
	"github.com/mnicolasvega/taskcommander/pkg/state"
	"github.com/mnicolasvega/taskcommander/pkg/task"
)

// TickInterval is the fixed scheduling period the should-run invariants
// are expressed in terms of.
const TickInterval = time.Second

// entry binds a registered task to its static configuration, in the
// order it was declared.
type entry struct {
	name          string
	task          task.Task
	params        task.Params
	containerized bool
}

// Commander owns the three scheduler maps (last-execution-time,
// running-containers, tasks-output) exclusively; no other component
// writes to them.
type Commander struct {
	tasks   []entry
	workDir string
	outDir  string

	runtime  runtime.ContainerRuntime
	builder  *build.Builder
	cleaner  *cleaner.Cleaner
	sink     *sink.Sink
	launcher *launcher.Launcher
	store    *state.Store
	logger   zerolog.Logger

	mu                sync.Mutex
	lastExecutionTime map[string]time.Time
	runningContainers map[string]runtime.Handle
	tasksOutput       map[string]sink.Triple
	healthStatus      map[string]*health.Status
	healthConfig      health.Config

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New resolves cfg's task declarations against the static registry and
// constructs a Commander. It returns an error if a declared key has no
// registered task.
func New(cfg config.Config, rt runtime.ContainerRuntime, store *state.Store) (*Commander, error) {
	entries := make([]entry, 0, len(cfg.Tasks))
	for _, decl := range cfg.Tasks {
		t, ok := task.Lookup(decl.Key)
		if !ok {
			return nil, fmt.Errorf("commander: no task registered for key %q", decl.Key)
		}
		entries = append(entries, entry{
			name:          decl.Key,
			task:          t,
			params:        task.Params(decl.Params),
			containerized: decl.Containerized,
		})
	}

	c := &Commander{
		tasks:             entries,
		workDir:           cfg.WorkDir,
		outDir:            cfg.OutDir,
		runtime:           rt,
		builder:           build.New(rt, cfg.WorkDir, cfg.ForceRebuild),
		cleaner:           cleaner.New(rt),
		sink:              sink.New(cfg.OutDir),
		launcher:          launcher.New(),
		store:             store,
		logger:            log.WithComponent("commander"),
		lastExecutionTime: make(map[string]time.Time),
		runningContainers: make(map[string]runtime.Handle),
		tasksOutput:       make(map[string]sink.Triple),
		healthStatus:      make(map[string]*health.Status),
		healthConfig:      health.DefaultConfig(),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}

	if store != nil {
		if loaded, err := store.LoadLastExecution(); err == nil {
			c.lastExecutionTime = loaded
		}
		if loaded, err := store.LoadOutputs(); err == nil {
			for name, rec := range loaded {
				c.tasksOutput[name] = sink.Triple{Text: rec.Text, HTML: rec.HTML, Data: rec.Data}
			}
		}
	}

	return c, nil
}

// Start persists the task snapshot for external consumers, reclaims any
// orphaned containers left by a previous run, and begins the tick loop.
func (c *Commander) Start(ctx context.Context) error {
	if err := c.persistTaskSnapshot(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist task snapshot")
	}

	c.cleaner.ReclaimOrphans(ctx)

	go c.loop(ctx)
	return nil
}

// Shutdown stops the tick loop, waits for any in-flight tick to finish,
// and stops every registered running container. It is safe to call more
// than once.
func (c *Commander) Shutdown(ctx context.Context) {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh

		c.mu.Lock()
		running := c.runningContainers
		c.mu.Unlock()

		c.cleaner.StopRunning(ctx, running)
		c.logger.Info().Msg("shutdown complete")
	})
}

// Snapshot returns a defensive copy of the current tasks-output map, for
// use by an external report collaborator.
func (c *Commander) Snapshot() map[string]sink.Triple {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]sink.Triple, len(c.tasksOutput))
	for k, v := range c.tasksOutput {
		out[k] = v
	}
	return out
}

func (c *Commander) loop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one scheduling cycle: reap finished containers, then
// evaluate and dispatch each task in declaration order. A panic anywhere
// in the cycle is caught and logged so the loop survives to the next
// tick, mirroring the unhandled-loop-exception policy.
func (c *Commander) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.TickDuration)
		metrics.TicksTotal.Inc()
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("recovered from panic in tick")
		}
	}()

	c.reap(ctx)

	for _, e := range c.tasks {
		if c.shouldRun(e) {
			c.dispatch(ctx, e)
		}
	}

	c.mu.Lock()
	metrics.RunningContainers.Set(float64(len(c.runningContainers)))
	c.mu.Unlock()
}

// shouldRun is a pure function of (now, cadence, last-execution-time,
// running-containers, mode).
func (c *Commander) shouldRun(e entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	interval, keepAlive := e.task.Interval()
	if keepAlive {
		if e.containerized {
			_, running := c.runningContainers[e.name]
			return !running
		}
		_, ran := c.lastExecutionTime[e.name]
		return !ran
	}

	last, ok := c.lastExecutionTime[e.name]
	if !ok {
		return true
	}
	return time.Since(last) >= time.Duration(interval)*time.Second
}

func (c *Commander) dispatch(ctx context.Context, e entry) {
	now := time.Now()
	params := stampParams(e.params, build.OutDir(c.outDir, e.containerized), e.containerized)

	if !e.containerized {
		c.dispatchContainerless(e, params, now)
		return
	}
	c.dispatchContainerized(ctx, e, params, now)
}

func stampParams(base task.Params, outdir string, containerized bool) task.Params {
	params := make(task.Params, len(base)+2)
	for k, v := range base {
		params[k] = v
	}
	params["outdir"] = outdir
	params["containerized"] = containerized
	return params
}

func (c *Commander) dispatchContainerless(e entry, params task.Params, now time.Time) {
	taskLog := log.WithTask(e.name)
	timer := metrics.NewTimer()

	c.launcher.Run(e.task, params, c.outDir)
	timer.ObserveDurationVec(metrics.DispatchLatency, "containerless")

	if logs := c.launcher.Logs(); len(logs) > 0 {
		lines := make([]string, len(logs))
		for i, entry := range logs {
			lines[i] = entry.Message
		}
		taskLog.Debug().Strs("launcher_log", lines).Msg("launcher diagnostic trail")
	}

	triple := c.sink.Read(e.name)

	c.mu.Lock()
	c.lastExecutionTime[e.name] = now
	c.tasksOutput[e.name] = triple
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveLastExecution(e.name, now); err != nil {
			taskLog.Warn().Err(err).Msg("failed to persist last execution time")
		}
		if err := c.store.SaveOutput(e.name, toRecord(triple)); err != nil {
			taskLog.Warn().Err(err).Msg("failed to persist output")
		}
	}

	metrics.TasksDispatchedTotal.WithLabelValues("containerless", "ok").Inc()
	taskLog.Debug().Msg("containerless dispatch complete")
}

func (c *Commander) dispatchContainerized(ctx context.Context, e entry, params task.Params, now time.Time) {
	taskLog := log.WithTask(e.name)
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DispatchLatency, "containerized")

	if err := c.builder.Ensure(ctx, e.task); err != nil {
		taskLog.Error().Err(err).Msg("image build failed, will retry next tick")
		metrics.TasksDispatchedTotal.WithLabelValues("containerized", "build_error").Inc()
		return
	}

	env, err := c.builder.Env(params)
	if err != nil {
		taskLog.Error().Err(err).Msg("failed to encode params")
		metrics.TasksDispatchedTotal.WithLabelValues("containerized", "encode_error").Inc()
		return
	}

	resources := e.task.Resources()
	spec := runtime.RunSpec{
		ImageTag:    build.ImageTag(e.name),
		Command:     c.builder.Command(e.task),
		WorkDir:     build.ContainerWorkDir,
		Mounts:      c.builder.Volumes(e.task, e.params),
		Ports:       e.task.Ports(e.params),
		Env:         env,
		CPUNanos:    build.CPUNanos(resources.CPUCores),
		MemoryBytes: build.MemoryBytes(resources.MemoryGBs),
		NetworkMode: build.NetworkMode(e.task),
		Labels: map[string]string{
			"task.name":      e.name,
			"execution.id":   uuid.NewString(),
			"execution.mode": "containerized",
		},
	}

	handle, err := c.runtime.Run(ctx, spec)
	if err != nil {
		taskLog.Error().Err(err).Msg("container start failed, will retry next tick")
		metrics.TasksDispatchedTotal.WithLabelValues("containerized", "run_error").Inc()
		return
	}

	c.mu.Lock()
	c.runningContainers[e.name] = handle
	c.lastExecutionTime[e.name] = now
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveLastExecution(e.name, now); err != nil {
			taskLog.Warn().Err(err).Msg("failed to persist last execution time")
		}
	}

	metrics.TasksDispatchedTotal.WithLabelValues("containerized", "ok").Inc()
	taskLog.Info().Str("container", handle.ShortID).Msg("container dispatched")
}

// reap polls every registered running container for a terminal state,
// collects its artifacts, and removes it. Errors for one container are
// logged and do not prevent reaping the rest.
func (c *Commander) reap(ctx context.Context) {
	c.mu.Lock()
	snapshot := make(map[string]runtime.Handle, len(c.runningContainers))
	for name, handle := range c.runningContainers {
		snapshot[name] = handle
	}
	c.mu.Unlock()

	for name, handle := range snapshot {
		c.reapOne(ctx, name, handle)
	}
}

func (c *Commander) entryByName(name string) (entry, bool) {
	for _, e := range c.tasks {
		if e.name == name {
			return e, true
		}
	}
	return entry{}, false
}

func (c *Commander) reapOne(ctx context.Context, name string, handle runtime.Handle) {
	taskLog := log.WithTask(name)

	result, err := c.runtime.Inspect(ctx, handle)
	if err != nil {
		taskLog.Warn().Err(err).Msg("inspect failed, will retry next tick")
		return
	}
	if result.State != runtime.StateExited {
		c.checkLiveness(ctx, name, handle)
		return
	}

	if logs, err := c.runtime.Logs(ctx, handle); err != nil {
		taskLog.Warn().Err(err).Msg("failed to fetch container logs")
	} else {
		taskLog.Debug().Int("exit_code", result.ExitCode).Str("logs", sanitizeLogs(logs)).Msg("container finished")
	}

	triple := c.sink.Read(name)

	c.mu.Lock()
	c.tasksOutput[name] = triple
	delete(c.runningContainers, name)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveOutput(name, toRecord(triple)); err != nil {
			taskLog.Warn().Err(err).Msg("failed to persist output")
		}
	}

	if err := c.runtime.Remove(ctx, handle); err != nil {
		taskLog.Warn().Err(err).Msg("remove failed")
		metrics.ContainersReapedTotal.WithLabelValues("remove_failed").Inc()
		return
	}
	metrics.ContainersReapedTotal.WithLabelValues("ok").Inc()
}

// checkLiveness probes a still-running container and logs a warning once
// it crosses the configured failure threshold. A task exposing a port
// gets a TCP probe against it; a task with no declared port gets an
// exec-based probe instead, confirming the engine can still run a
// command inside it. A keep-alive containerized task (e.g. a long-lived
// ingest daemon) is never restarted on an unhealthy verdict here — the
// reap loop only recycles on engine-reported exit — this is diagnostic
// surface for the ambient logger, not a supervisor action.
func (c *Commander) checkLiveness(ctx context.Context, name string, handle runtime.Handle) {
	e, ok := c.entryByName(name)
	if !ok {
		return
	}

	var checker health.Checker
	ports := e.task.Ports(e.params)
	if len(ports) > 0 {
		var hostPort int
		for _, hp := range ports {
			hostPort = hp
			break
		}
		checker = health.NewTCPChecker(fmt.Sprintf("127.0.0.1:%d", hostPort))
	} else {
		checker = &health.ExecChecker{
			Command:     []string{"true"},
			Timeout:     5 * time.Second,
			ContainerID: handle.ID,
			Execer:      runtimeExecer{c.runtime},
		}
	}

	result := checker.Check(ctx)

	c.mu.Lock()
	status, ok := c.healthStatus[name]
	if !ok {
		status = health.NewStatus()
		c.healthStatus[name] = status
	}
	status.Update(result, c.healthConfig)
	unhealthy := !status.Healthy
	c.mu.Unlock()

	if unhealthy {
		log.WithTask(name).Warn().
			Int("consecutive_failures", status.ConsecutiveFailures).
			Str("message", result.Message).
			Msg("container failed liveness probe")
	}
}

// runtimeExecer adapts a runtime.ContainerRuntime to health.Execer so the
// exec-based liveness probe can run through the same engine connection
// the Commander already holds.
type runtimeExecer struct {
	rt runtime.ContainerRuntime
}

func (e runtimeExecer) Exec(ctx context.Context, containerID string, cmd []string) ([]byte, error) {
	return e.rt.Exec(ctx, runtime.Handle{ID: containerID}, cmd)
}

func sanitizeLogs(b []byte) string {
	const max = 2048
	s := string(b)
	if len(s) > max {
		return s[:max]
	}
	return s
}

func toRecord(t sink.Triple) state.OutputRecord {
	var data map[string]any
	if m, ok := t.Data.(map[string]any); ok {
		data = m
	}
	return state.OutputRecord{Text: t.Text, HTML: t.HTML, Data: data}
}

func (c *Commander) persistTaskSnapshot() error {
	type entrySnapshot struct {
		Name  string `json:"name"`
		Order int    `json:"order"`
	}

	snapshot := make([]entrySnapshot, 0, len(c.tasks))
	for i, e := range c.tasks {
		snapshot = append(snapshot, entrySnapshot{Name: e.name, Order: i})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Name < snapshot[j].Name })

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(c.workDir, "tmp", "output.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
