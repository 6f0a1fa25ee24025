package build

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/mnicolasvega/taskcommander/pkg/log"
	"github.com/mnicolasvega/taskcommander/pkg/metrics"
	"github.com/mnicolasvega/taskcommander/pkg/runtime"
	"github.com/mnicolasvega/taskcommander/pkg/task"
)

// ContainerWorkDir is the fixed in-container mount point for the
// Commander's working directory. outdir, task scratch directories, and
// bind mounts are all expressed relative to this prefix inside a
// container.
const ContainerWorkDir = "/app"

// ContainerOutDir is the fixed in-container absolute path tasks see as
// their out-dir when running containerised.
const ContainerOutDir = ContainerWorkDir + "/out"

// Builder turns tasks into runnable container specs.
type Builder struct {
	runtime      runtime.ContainerRuntime
	workDir      string
	forceRebuild bool

	// stageLauncher populates a build context's container/ directory with
	// the launcher binary the generated Dockerfile copies in. Overridable
	// so tests can avoid shelling out to the real Go toolchain.
	stageLauncher func(containerDir string) error
}

// New constructs a Builder rooted at workDir (the Commander's working
// directory, bind-mounted into every containerised task, and also the
// root of the taskcommander source checkout cmd/launcher is compiled
// from).
func New(rt runtime.ContainerRuntime, workDir string, forceRebuild bool) *Builder {
	b := &Builder{runtime: rt, workDir: workDir, forceRebuild: forceRebuild}
	b.stageLauncher = b.compileLauncher
	return b
}

// SetStageLauncher overrides how writeContext populates a build context's
// launcher binary, letting tests substitute a stub for the real
// cross-compile.
func (b *Builder) SetStageLauncher(fn func(containerDir string) error) {
	b.stageLauncher = fn
}

// TaskDir returns the recipe and scratch-space directory for a task name.
func (b *Builder) TaskDir(name string) string {
	return filepath.Join(b.workDir, "tmp", "tasks", name)
}

// shouldRebuild implements the literal rebuild-decision formula: the
// image is rebuilt unless force-rebuild is false AND no recipe file
// exists AND the engine already has an image with the target tag. The
// absence of a recipe file is read as evidence the image is fresh; a
// recipe file on disk forces a rebuild even when the image exists.
func shouldRebuild(forceRebuild bool, recipeExists bool, imageExists bool) bool {
	skip := !forceRebuild && !recipeExists && imageExists
	return !skip
}

// Ensure makes sure t's image exists in the engine, rebuilding it (and
// regenerating its Dockerfile) if the rebuild decision calls for it.
func (b *Builder) Ensure(ctx context.Context, t task.Task) error {
	taskDir := b.TaskDir(t.Name())
	tag := ImageTag(t.Name())
	taskLog := log.WithTask(t.Name())

	_, statErr := os.Stat(RecipePath(taskDir))
	recipeExists := statErr == nil

	exists, err := b.runtime.ImageExists(ctx, tag)
	if err != nil {
		return fmt.Errorf("build: check image exists: %w", err)
	}

	if !shouldRebuild(b.forceRebuild, recipeExists, exists) {
		taskLog.Debug().Str("image", tag).Msg("using cached image")
		return nil
	}

	if err := GenerateRecipe(t, taskDir); err != nil {
		return err
	}
	if err := b.writeContext(t, taskDir); err != nil {
		return err
	}

	taskLog.Info().Str("image", tag).Msg("building image")
	timer := metrics.NewTimer()
	if err := b.runtime.BuildImage(ctx, taskDir, tag); err != nil {
		timer.ObserveDuration(metrics.ImageBuildDuration)
		metrics.ImageBuildsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("build: build image %s: %w", tag, err)
	}
	timer.ObserveDuration(metrics.ImageBuildDuration)
	metrics.ImageBuildsTotal.WithLabelValues("ok").Inc()
	return nil
}

// writeContext ensures the container/ subdirectory a built image's
// Dockerfile copies into /app exists and holds a freshly compiled,
// statically linked launcher binary, so ./launcher inside the resulting
// image is the one Command references.
func (b *Builder) writeContext(t task.Task, taskDir string) error {
	containerDir := filepath.Join(taskDir, "container")
	if err := os.MkdirAll(containerDir, 0755); err != nil {
		return err
	}
	return b.stageLauncher(containerDir)
}

// compileLauncher cross-compiles cmd/launcher for the engine's target
// platform (linux/amd64, matching the Dockerfile's base image) and writes
// the resulting static binary to <containerDir>/launcher.
func (b *Builder) compileLauncher(containerDir string) error {
	binPath := filepath.Join(containerDir, "launcher")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/launcher")
	cmd.Dir = b.workDir
	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=amd64", "CGO_ENABLED=0")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build: compile launcher: %w: %s", err, out)
	}
	return os.Chmod(binPath, 0755)
}

// Command constructs the shell invocation the container runs: write
// declared pip requirements, create and activate a virtualenv, install
// them, then run the in-container launcher with the out-dir and the task
// name; the launcher reads its parameters from the PARAMS environment
// variable set on the container (see Env). Keep-alive tasks (absent
// cadence) get an idle tail appended so the container does not exit once
// the launcher returns.
func (b *Builder) Command(t task.Task) []string {
	deps := t.Dependencies()
	requirements := ""
	for i, pkg := range deps.Pip {
		if i > 0 {
			requirements += "\n"
		}
		requirements += pkg
	}

	body := fmt.Sprintf(`cat > /tmp/requirements.txt << 'EOF'
%s
EOF
python -m venv /tmp/venv
. /tmp/venv/bin/activate
pip install --no-cache-dir --root-user-action=ignore -r /tmp/requirements.txt
./launcher --outdir %s --task %s`, requirements, ContainerOutDir, t.Name())

	if _, keepAlive := t.Interval(); keepAlive {
		body += " && tail -f /dev/null"
	}

	return []string{"sh", "-c", body}
}

// Env builds the environment map for a containerised run: a single
// PARAMS variable carrying the JSON-serialised parameter dictionary, the
// only channel the in-container entrypoint uses to receive them.
func (b *Builder) Env(params task.Params) (map[string]string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("build: marshal params: %w", err)
	}
	return map[string]string{"PARAMS": string(paramsJSON)}, nil
}

// Volumes assembles the mount list for a containerised run: the fixed
// working-directory mount, plus every volume the task declares for these
// params, verbatim. Each entry is first expressed as an OCI runtime-spec
// mount (the vocabulary the task's declared access mode maps onto most
// directly) and then narrowed to the engine-facing runtime.Mount.
func (b *Builder) Volumes(t task.Task, params task.Params) []runtime.Mount {
	ociMounts := []specs.Mount{
		ociMount(b.workDir, ContainerWorkDir, task.VolumeReadWrite),
	}
	for _, v := range t.Volumes(params) {
		ociMounts = append(ociMounts, ociMount(v.HostPath, v.Bind, v.Mode))
	}

	mounts := make([]runtime.Mount, 0, len(ociMounts))
	for _, m := range ociMounts {
		mounts = append(mounts, runtime.Mount{
			HostPath:      m.Source,
			ContainerPath: m.Destination,
			ReadOnly:      hasOption(m.Options, "ro"),
		})
	}
	return mounts
}

func ociMount(hostPath, containerPath string, mode task.VolumeMode) specs.Mount {
	options := []string{"rbind"}
	if mode == task.VolumeReadOnly {
		options = append(options, "ro")
	} else {
		options = append(options, "rw")
	}
	return specs.Mount{
		Source:      hostPath,
		Destination: containerPath,
		Type:        "bind",
		Options:     options,
	}
}

func hasOption(options []string, target string) bool {
	for _, o := range options {
		if o == target {
			return true
		}
	}
	return false
}

// NetworkMode returns "default" iff the task requires connectivity or
// declares any dependency at all, otherwise "none".
func NetworkMode(t task.Task) string {
	deps := t.Dependencies()
	if t.RequiresConnection() || deps.Len() > 0 {
		return "default"
	}
	return "none"
}

// CPUNanos converts cpu cores to the nano-CPU units the engine expects.
func CPUNanos(cores float64) int64 {
	return int64(cores * 1e9)
}

// MemoryBytes converts a memory budget in GB to bytes for the engine's
// resource limits.
func MemoryBytes(gb int) int64 {
	return int64(gb) * 1024 * 1024 * 1024
}

// MemoryString renders a memory budget in GB in the "<n>g" form. The
// engine's resource limits use MemoryBytes instead.
func MemoryString(gb int) string {
	return fmt.Sprintf("%dg", gb)
}

// OutDir resolves the out-dir a task sees: the fixed in-container path
// when containerised, or the host path to the same directory otherwise.
func OutDir(hostOutDir string, containerised bool) string {
	if containerised {
		return ContainerOutDir
	}
	return hostOutDir
}
