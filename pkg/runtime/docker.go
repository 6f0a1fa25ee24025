package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerRuntime implements ContainerRuntime against the Docker Engine API,
// the same engine semantics the original Python implementation drove
// through docker-py.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime connects to the engine named by host (empty uses
// DOCKER_HOST / the default socket) and verifies it is reachable.
func NewDockerRuntime(ctx context.Context, host string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("runtime: engine unreachable: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// Close releases the underlying client connection.
func (r *DockerRuntime) Close() error {
	return r.client.Close()
}

func (r *DockerRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	args := filters.NewArgs(filters.Arg("reference", tag))
	images, err := r.client.ImageList(ctx, image.ListOptions{Filters: args})
	if err != nil {
		return false, fmt.Errorf("runtime: image list: %w", err)
	}
	return len(images) > 0, nil
}

// BuildImage tars contextDir and streams it to the engine's build
// endpoint. Remove and ForceRemove both being set means intermediate
// containers are cleaned up on success and on failure, satisfying the
// adapter's cleanup contract.
func (r *DockerRuntime) BuildImage(ctx context.Context, contextDir, tag string) error {
	tarball, err := tarDirectory(contextDir)
	if err != nil {
		return fmt.Errorf("runtime: tar build context: %w", err)
	}

	resp, err := r.client.ImageBuild(ctx, tarball, types.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("runtime: image build: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("runtime: drain build response: %w", err)
	}
	return nil
}

func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		hdr := &tar.Header{Name: rel, Size: int64(len(data)), Mode: 0644}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (r *DockerRuntime) Run(ctx context.Context, spec RunSpec) (Handle, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}

	portBindings := nat.PortMap{}
	exposedPorts := nat.PortSet{}
	for containerPort, hostPort := range spec.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[port] = []nat.PortBinding{{HostPort: fmt.Sprintf("%d", hostPort)}}
		exposedPorts[port] = struct{}{}
	}

	networkMode := container.NetworkMode("none")
	if spec.NetworkMode == "default" {
		networkMode = container.NetworkMode("default")
	}

	cfg := &container.Config{
		Image:        spec.ImageTag,
		Cmd:          spec.Command,
		Env:          env,
		WorkingDir:   spec.WorkDir,
		Labels:       spec.Labels,
		ExposedPorts: exposedPorts,
	}
	hostCfg := &container.HostConfig{
		Mounts:       mounts,
		NetworkMode:  networkMode,
		PortBindings: portBindings,
		Resources: container.Resources{
			NanoCPUs: spec.CPUNanos,
			Memory:   spec.MemoryBytes,
		},
		AutoRemove: false,
	}

	created, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Handle{}, fmt.Errorf("runtime: container create: %w", err)
	}
	if err := r.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Handle{}, fmt.Errorf("runtime: container start: %w", err)
	}

	return Handle{ID: created.ID, ShortID: shortID(created.ID), ImageTag: spec.ImageTag}, nil
}

func (r *DockerRuntime) Inspect(ctx context.Context, handle Handle) (InspectResult, error) {
	info, err := r.client.ContainerInspect(ctx, handle.ID)
	if err != nil {
		return InspectResult{}, fmt.Errorf("runtime: inspect %s: %w", handle.ShortID, err)
	}

	state := StateUnknown
	switch {
	case info.State.Running:
		state = StateRunning
	case info.State.Status == "exited":
		state = StateExited
	}

	return InspectResult{
		State:    state,
		ExitCode: info.State.ExitCode,
		ShortID:  shortID(info.ID),
	}, nil
}

func (r *DockerRuntime) Logs(ctx context.Context, handle Handle) ([]byte, error) {
	reader, err := r.client.ContainerLogs(ctx, handle.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: logs %s: %w", handle.ShortID, err)
	}
	defer reader.Close()

	// Docker multiplexes stdout/stderr with an 8-byte header per frame
	// when the container was not created with a TTY.
	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, reader); err != nil {
		return nil, fmt.Errorf("runtime: demux logs %s: %w", handle.ShortID, err)
	}
	return out.Bytes(), nil
}

// Exec runs cmd inside handle's container via the engine's exec API and
// returns its combined stdout/stderr, reporting a non-zero exit code as
// an error.
func (r *DockerRuntime) Exec(ctx context.Context, handle Handle, cmd []string) ([]byte, error) {
	created, err := r.client.ContainerExecCreate(ctx, handle.ID, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: exec create %s: %w", handle.ShortID, err)
	}

	attached, err := r.client.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("runtime: exec attach %s: %w", handle.ShortID, err)
	}
	defer attached.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, attached.Reader); err != nil {
		return nil, fmt.Errorf("runtime: exec read output %s: %w", handle.ShortID, err)
	}

	inspect, err := r.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("runtime: exec inspect %s: %w", handle.ShortID, err)
	}
	if inspect.ExitCode != 0 {
		return out.Bytes(), fmt.Errorf("runtime: exec %v exited %d", cmd, inspect.ExitCode)
	}
	return out.Bytes(), nil
}

func (r *DockerRuntime) Stop(ctx context.Context, handle Handle, grace time.Duration) error {
	secs := int(grace.Seconds())
	if err := r.client.ContainerStop(ctx, handle.ID, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("runtime: stop %s: %w", handle.ShortID, err)
	}
	return nil
}

func (r *DockerRuntime) Remove(ctx context.Context, handle Handle) error {
	if err := r.client.ContainerRemove(ctx, handle.ID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("runtime: remove %s: %w", handle.ShortID, err)
	}
	return nil
}

func (r *DockerRuntime) ListAll(ctx context.Context, imageTagPrefix string) ([]Handle, error) {
	containers, err := r.client.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("runtime: list containers: %w", err)
	}

	var matched []Handle
	for _, c := range containers {
		if len(c.Image) >= len(imageTagPrefix) && c.Image[:len(imageTagPrefix)] == imageTagPrefix {
			matched = append(matched, Handle{ID: c.ID, ShortID: shortID(c.ID), ImageTag: c.Image})
		}
	}
	return matched, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
