/*
Package runtime defines the Container Runtime Adapter: a narrow port
(ContainerRuntime) covering image existence checks, builds, container
lifecycle, and log collection, plus a Docker Engine-backed implementation.

Callers never depend on DockerRuntime directly. The Commander, the Image
Builder, and the Cleaner are written against the ContainerRuntime
interface so tests can substitute the in-memory fake in pkg/runtime/fake
instead of driving a real engine.

	rt, err := runtime.NewDockerRuntime(ctx, cfg.DockerHost)
	handle, err := rt.Run(ctx, runtime.RunSpec{ImageTag: tag, Command: cmd})
*/
package runtime
