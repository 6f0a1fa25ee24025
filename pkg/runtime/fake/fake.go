// Package fake provides an in-memory runtime.ContainerRuntime for tests
// that exercise the Commander, Image Builder, and Cleaner without a real
// container engine.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnicolasvega/taskcommander/pkg/runtime"
)

type container struct {
	handle   runtime.Handle
	spec     runtime.RunSpec
	state    runtime.State
	exitCode int
	logs     []byte
	stopped  bool
}

// Runtime is a ContainerRuntime backed by in-process maps. Every exported
// field and method is safe for concurrent use.
type Runtime struct {
	mu sync.Mutex

	images     map[string]bool
	containers map[string]*container
	nextID     int

	// BuildErr, when set, is returned by every BuildImage call.
	BuildErr error
	// RunErr, when set, is returned by every Run call.
	RunErr error
	// Logs, keyed by image tag, seeds the output a started container
	// reports from Logs.
	Logs map[string][]byte
	// AutoExit, when true, makes containers start in StateExited with
	// ExitCode 0, so they never count as running.
	AutoExit bool

	// ExecErr, when set, is returned by every Exec call.
	ExecErr error
	// ExecOutput, when set, is returned by every successful Exec call.
	ExecOutput []byte
}

// New returns an empty fake runtime.
func New() *Runtime {
	return &Runtime{
		images:     make(map[string]bool),
		containers: make(map[string]*container),
		Logs:       make(map[string][]byte),
	}
}

// SeedImage marks tag as already built, so ImageExists reports true
// without a prior BuildImage call.
func (r *Runtime) SeedImage(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[tag] = true
}

// SetState forces the reported state of a container, letting tests model
// a long-running or crashed task without a real timer.
func (r *Runtime) SetState(id string, state runtime.State, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.containers[id]; ok {
		c.state = state
		c.exitCode = exitCode
	}
}

// SpecByImage returns the RunSpec most recently used to start a
// container for the given image tag, letting tests inspect what the
// commander and builder actually requested (network mode, mounts,
// resources) without a real engine.
func (r *Runtime) SpecByImage(tag string) (runtime.RunSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.containers {
		if c.spec.ImageTag == tag {
			return c.spec, true
		}
	}
	return runtime.RunSpec{}, false
}

// Running reports how many containers are tracked in the running state.
func (r *Runtime) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.containers {
		if c.state == runtime.StateRunning {
			n++
		}
	}
	return n
}

func (r *Runtime) ImageExists(ctx context.Context, tag string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.images[tag], nil
}

func (r *Runtime) BuildImage(ctx context.Context, contextDir, tag string) error {
	if r.BuildErr != nil {
		return r.BuildErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[tag] = true
	return nil
}

func (r *Runtime) Run(ctx context.Context, spec runtime.RunSpec) (runtime.Handle, error) {
	if r.RunErr != nil {
		return runtime.Handle{}, r.RunErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := fmt.Sprintf("fake-%d", r.nextID)
	handle := runtime.Handle{ID: id, ShortID: id, ImageTag: spec.ImageTag}

	state := runtime.StateRunning
	exitCode := 0
	if r.AutoExit {
		state = runtime.StateExited
	}

	r.containers[id] = &container{
		handle:   handle,
		spec:     spec,
		state:    state,
		exitCode: exitCode,
		logs:     r.Logs[spec.ImageTag],
	}
	return handle, nil
}

func (r *Runtime) Inspect(ctx context.Context, handle runtime.Handle) (runtime.InspectResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[handle.ID]
	if !ok {
		return runtime.InspectResult{}, fmt.Errorf("fake: unknown container %s", handle.ID)
	}
	return runtime.InspectResult{State: c.state, ExitCode: c.exitCode, ShortID: c.handle.ShortID}, nil
}

func (r *Runtime) Logs(ctx context.Context, handle runtime.Handle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[handle.ID]
	if !ok {
		return nil, fmt.Errorf("fake: unknown container %s", handle.ID)
	}
	return c.logs, nil
}

func (r *Runtime) Exec(ctx context.Context, handle runtime.Handle, cmd []string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[handle.ID]; !ok {
		return nil, fmt.Errorf("fake: unknown container %s", handle.ID)
	}
	if r.ExecErr != nil {
		return nil, r.ExecErr
	}
	return r.ExecOutput, nil
}

func (r *Runtime) Stop(ctx context.Context, handle runtime.Handle, grace time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[handle.ID]
	if !ok {
		return fmt.Errorf("fake: unknown container %s", handle.ID)
	}
	c.stopped = true
	c.state = runtime.StateExited
	return nil
}

func (r *Runtime) Remove(ctx context.Context, handle runtime.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[handle.ID]; !ok {
		return fmt.Errorf("fake: unknown container %s", handle.ID)
	}
	delete(r.containers, handle.ID)
	return nil
}

func (r *Runtime) ListAll(ctx context.Context, imageTagPrefix string) ([]runtime.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []runtime.Handle
	for _, c := range r.containers {
		if len(c.handle.ImageTag) >= len(imageTagPrefix) && c.handle.ImageTag[:len(imageTagPrefix)] == imageTagPrefix {
			out = append(out, c.handle)
		}
	}
	return out, nil
}
