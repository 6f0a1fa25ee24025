package commander

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnicolasvega/taskcommander/pkg/build"
	"github.com/mnicolasvega/taskcommander/pkg/config"
	"github.com/mnicolasvega/taskcommander/pkg/runtime"
	"github.com/mnicolasvega/taskcommander/pkg/runtime/fake"
	"github.com/mnicolasvega/taskcommander/pkg/task"
)

// stubStageLauncher substitutes a trivial placeholder for the real
// cross-compiled launcher binary, so tests exercise the build pipeline
// without shelling out to the Go toolchain.
func stubStageLauncher(containerDir string) error {
	return os.WriteFile(filepath.Join(containerDir, "launcher"), []byte("stub"), 0755)
}

type scriptedTask struct {
	name       string
	interval   int
	keepAlive  bool
	deps       task.Dependencies
	requiresNW bool
	runs       int32
	mu         sync.Mutex
}

func (s *scriptedTask) Name() string          { return s.name }
func (s *scriptedTask) Interval() (int, bool) { return s.interval, s.keepAlive }
func (s *scriptedTask) Run(task.Params) (task.Result, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return task.Result{}, nil
}
func (s *scriptedTask) TextOutput(task.Result) string     { return "ok" }
func (s *scriptedTask) HTMLOutput(task.Result) string     { return "<p>ok</p>" }
func (s *scriptedTask) Dependencies() task.Dependencies   { return s.deps }
func (s *scriptedTask) Volumes(task.Params) []task.Volume { return nil }
func (s *scriptedTask) Ports(task.Params) map[int]int     { return nil }
func (s *scriptedTask) RequiresConnection() bool          { return s.requiresNW }
func (s *scriptedTask) Resources() task.Resources {
	return task.Resources{CPUCores: 0.5, MemoryGBs: 1}
}
func (s *scriptedTask) MaxTimeExpected() int { return 0 }

func (s *scriptedTask) runCount() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

var registerOnce sync.Once

var (
	scheduledCL = &scriptedTask{name: "commander-test-scheduled-cl", interval: 60}
	keepAliveCL = &scriptedTask{name: "commander-test-keepalive-cl", keepAlive: true}
	keepAliveCZ = &scriptedTask{name: "commander-test-keepalive-cz", keepAlive: true}
	isolatedCZ  = &scriptedTask{name: "commander-test-isolated-cz", keepAlive: true}
)

func registerTestTasks() {
	registerOnce.Do(func() {
		task.Register(scheduledCL.name, func() task.Task { return scheduledCL })
		task.Register(keepAliveCL.name, func() task.Task { return keepAliveCL })
		task.Register(keepAliveCZ.name, func() task.Task { return keepAliveCZ })
		task.Register(isolatedCZ.name, func() task.Task { return isolatedCZ })
	})
}

func newTestCommander(t *testing.T, rt runtime.ContainerRuntime, decls []config.TaskDeclaration) *Commander {
	t.Helper()
	registerTestTasks()

	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.OutDir = t.TempDir()
	cfg.Tasks = decls

	c, err := New(cfg, rt, nil)
	require.NoError(t, err)
	c.builder.SetStageLauncher(stubStageLauncher)
	return c
}

func TestShouldRunScheduledContainerless(t *testing.T) {
	c := newTestCommander(t, fake.New(), []config.TaskDeclaration{{Key: scheduledCL.name}})
	e := c.tasks[0]

	assert.True(t, c.shouldRun(e), "never run before should be eligible")

	c.mu.Lock()
	c.lastExecutionTime[e.name] = time.Now()
	c.mu.Unlock()
	assert.False(t, c.shouldRun(e), "just ran, interval not elapsed")

	c.mu.Lock()
	c.lastExecutionTime[e.name] = time.Now().Add(-61 * time.Second)
	c.mu.Unlock()
	assert.True(t, c.shouldRun(e), "interval elapsed")
}

func TestShouldRunKeepAliveContainerless(t *testing.T) {
	c := newTestCommander(t, fake.New(), []config.TaskDeclaration{{Key: keepAliveCL.name}})
	e := c.tasks[0]

	assert.True(t, c.shouldRun(e))

	c.mu.Lock()
	c.lastExecutionTime[e.name] = time.Now()
	c.mu.Unlock()
	assert.False(t, c.shouldRun(e), "keep-alive containerless never reruns once recorded")
}

func TestShouldRunKeepAliveContainerized(t *testing.T) {
	c := newTestCommander(t, fake.New(), []config.TaskDeclaration{{Key: keepAliveCZ.name, Containerized: true}})
	e := c.tasks[0]

	assert.True(t, c.shouldRun(e))

	c.mu.Lock()
	c.runningContainers[e.name] = runtime.Handle{ID: "x"}
	c.mu.Unlock()
	assert.False(t, c.shouldRun(e), "keep-alive containerized never reruns while a container is registered")
}

func TestDispatchContainerizedRegistersHandle(t *testing.T) {
	rt := fake.New()
	c := newTestCommander(t, rt, []config.TaskDeclaration{{Key: keepAliveCZ.name, Containerized: true}})

	c.tick(context.Background())

	c.mu.Lock()
	_, running := c.runningContainers[keepAliveCZ.name]
	_, ranAt := c.lastExecutionTime[keepAliveCZ.name]
	c.mu.Unlock()

	assert.True(t, running)
	assert.True(t, ranAt)
	assert.Equal(t, 1, rt.Running())
}

func TestRepeatedTicksDoNotRedispatchKeepAliveContainerized(t *testing.T) {
	rt := fake.New()
	c := newTestCommander(t, rt, []config.TaskDeclaration{{Key: keepAliveCZ.name, Containerized: true}})

	for i := 0; i < 10; i++ {
		c.tick(context.Background())
	}

	assert.Equal(t, 1, rt.Running(), "only one container should ever be created for a keep-alive task")
}

func TestReapRemovesFinishedContainerAndRecordsOutput(t *testing.T) {
	rt := fake.New()
	outDir := t.TempDir()
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.OutDir = outDir
	registerTestTasks()
	cfg.Tasks = []config.TaskDeclaration{{Key: keepAliveCZ.name, Containerized: true}}

	c, err := New(cfg, rt, nil)
	require.NoError(t, err)
	c.builder.SetStageLauncher(stubStageLauncher)

	c.tick(context.Background())

	c.mu.Lock()
	handle := c.runningContainers[keepAliveCZ.name]
	c.mu.Unlock()
	rt.SetState(handle.ID, runtime.StateExited, 0)

	c.reap(context.Background())

	c.mu.Lock()
	_, stillRunning := c.runningContainers[keepAliveCZ.name]
	_, recorded := c.tasksOutput[keepAliveCZ.name]
	c.mu.Unlock()

	assert.False(t, stillRunning)
	assert.True(t, recorded, "reap should record the collected output under the task name")
	handles, err := rt.ListAll(context.Background(), "task-commander:")
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestNetworkIsolationByTaskDeclaration(t *testing.T) {
	isolated := &scriptedTask{name: "commander-test-isolation-none", keepAlive: true}
	connected := &scriptedTask{name: "commander-test-isolation-default", keepAlive: true, requiresNW: true}
	task.Register(isolated.name, func() task.Task { return isolated })
	task.Register(connected.name, func() task.Task { return connected })

	rt := fake.New()
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.OutDir = t.TempDir()
	cfg.Tasks = []config.TaskDeclaration{
		{Key: isolated.name, Containerized: true},
		{Key: connected.name, Containerized: true},
	}

	c, err := New(cfg, rt, nil)
	require.NoError(t, err)
	c.builder.SetStageLauncher(stubStageLauncher)
	c.tick(context.Background())

	isolatedSpec, ok := rt.SpecByImage(build.ImageTag(isolated.name))
	require.True(t, ok)
	assert.Equal(t, "none", isolatedSpec.NetworkMode)

	connectedSpec, ok := rt.SpecByImage(build.ImageTag(connected.name))
	require.True(t, ok)
	assert.Equal(t, "default", connectedSpec.NetworkMode)
}

func TestShutdownIsIdempotent(t *testing.T) {
	rt := fake.New()
	c := newTestCommander(t, rt, []config.TaskDeclaration{{Key: keepAliveCZ.name, Containerized: true}})

	require.NoError(t, c.Start(context.Background()))
	time.Sleep(1200 * time.Millisecond)

	c.Shutdown(context.Background())
	assert.NotPanics(t, func() { c.Shutdown(context.Background()) })

	handles, err := rt.ListAll(context.Background(), "task-commander:")
	require.NoError(t, err)
	assert.Empty(t, handles, "shutdown must stop and remove every registered container")
}
