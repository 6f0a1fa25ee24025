// Package task defines the contract every periodic unit of work implements,
// and the static registry the Commander and the in-container launcher use
// to resolve a task by name.
package task

import "regexp"

// NameRegexp is the identifier pattern task names must match: it is reused
// as an image-tag suffix and as a path segment under the output directory.
var NameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Params carries a task's run-time arguments. It is JSON-serialisable and
// crosses the host/container boundary as the PARAMS environment variable.
type Params map[string]any

// Dependencies declares the three ordered manifests a task needs to run
// inside its own image: pip packages, apt packages, and environment
// variable declarations (each already in "NAME=value" form).
type Dependencies struct {
	Pip []string
	Apt []string
	Env []string
}

// Len reports how many distinct dependency declarations exist across all
// three manifests. A task with Len()==0 needs no outbound connectivity by
// virtue of having no install-time or runtime dependency surface.
func (d Dependencies) Len() int {
	return len(d.Pip) + len(d.Apt) + len(d.Env)
}

// VolumeMode controls the access mode of a bind-mounted host path.
type VolumeMode string

const (
	VolumeReadOnly  VolumeMode = "ro"
	VolumeReadWrite VolumeMode = "rw"
)

// Volume is one entry of a task's volume map: an absolute host path bound
// into the container at Bind, with the given access Mode.
type Volume struct {
	HostPath string
	Bind     string
	Mode     VolumeMode
}

// Resources is a task's resource envelope.
type Resources struct {
	CPUCores  float64 // fractional cores allowed
	MemoryGBs int     // memory ceiling in GB
}

// Result is the structured value a task's Run returns. Commander-added
// timing fields (time_elapsed_ms, time_finish_ms) are injected by the
// Containerless Launcher / in-container launcher before serialisation, not
// by the task itself.
type Result map[string]any

// Task is the contract every periodic unit of work must satisfy.
type Task interface {
	// Name is a stable identifier matching NameRegexp, used as the
	// image-tag suffix and as an artifact path segment.
	Name() string

	// Interval returns the desired spacing between dispatches in seconds,
	// and keepAlive true to mean "keep alive": run once and do not
	// re-dispatch while a container (or, containerless, a prior
	// execution) is still known. seconds is ignored when keepAlive is true.
	Interval() (seconds int, keepAlive bool)

	// Run executes the task body and returns its structured result. It
	// may perform I/O and may return an error; a non-nil error is the
	// TaskUserError case and does not stop the task from being
	// rescheduled.
	Run(params Params) (Result, error)

	// TextOutput renders a bounded-length human-readable summary of a
	// result.
	TextOutput(result Result) string

	// HTMLOutput renders an HTML fragment summarising a result.
	HTMLOutput(result Result) string

	// Dependencies returns the task's install-time and environment
	// manifest, used by the Image Builder to generate the task's
	// Dockerfile and by the network-mode decision.
	Dependencies() Dependencies

	// Volumes returns the task's declared host-to-container volume map
	// for the given parameters.
	Volumes(params Params) []Volume

	// Ports returns the task's container-port to host-port map.
	Ports(params Params) map[int]int

	// RequiresConnection reports whether the task needs outbound network
	// access regardless of its dependency manifest.
	RequiresConnection() bool

	// CPUCores and MemoryGBs make up the task's resource envelope.
	Resources() Resources

	// MaxTimeExpected returns the task's expected duration in
	// milliseconds, or zero if none is declared. Measured in
	// milliseconds (not seconds) because the only consumer, the
	// launcher's overrun check, compares it against an elapsed-ms value.
	MaxTimeExpected() int
}
