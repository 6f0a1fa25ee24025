package runtime

import (
	"context"
	"time"
)

// State is the terminal/non-terminal lifecycle state of a container as
// reported by the engine.
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
	StateUnknown State = "unknown"
)

// Handle identifies a container across the lifetime of a dispatch.
type Handle struct {
	ID       string
	ShortID  string
	ImageTag string
}

// Mount is a host-to-container bind mount.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// RunSpec is everything needed to start a detached container.
type RunSpec struct {
	ImageTag    string
	Command     []string
	WorkDir     string
	Mounts      []Mount
	Ports       map[int]int // container port -> host port
	Env         map[string]string
	CPUNanos    int64
	MemoryBytes int64
	NetworkMode string // "default" or "none"
	Labels      map[string]string
}

// InspectResult is the subset of engine-reported container state the
// Commander needs to decide whether a container has finished.
type InspectResult struct {
	State    State
	ExitCode int
	ShortID  string
}

// ContainerRuntime is a thin port over the container engine. It is the
// Container Runtime Adapter: the Commander, Image Builder, and Cleaner
// never talk to the engine client directly, only through this interface,
// so tests can substitute a fake without a real engine.
type ContainerRuntime interface {
	ImageExists(ctx context.Context, tag string) (bool, error)

	// BuildImage builds contextDir (which must contain a Dockerfile) and
	// tags the result. Implementations must remove intermediate build
	// artefacts on both success and failure.
	BuildImage(ctx context.Context, contextDir, tag string) error

	Run(ctx context.Context, spec RunSpec) (Handle, error)
	Inspect(ctx context.Context, handle Handle) (InspectResult, error)
	Logs(ctx context.Context, handle Handle) ([]byte, error)

	// Exec runs cmd inside a running container and returns its combined
	// stdout/stderr. A non-zero exit code is reported as a non-nil error.
	Exec(ctx context.Context, handle Handle, cmd []string) ([]byte, error)

	Stop(ctx context.Context, handle Handle, grace time.Duration) error
	Remove(ctx context.Context, handle Handle) error

	// ListAll returns every container (any state) whose image tag has
	// the given prefix, used by the Cleaner to find orphans.
	ListAll(ctx context.Context, imageTagPrefix string) ([]Handle, error)
}
