package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnicolasvega/taskcommander/pkg/runtime"
)

func TestBuildThenRunLifecycle(t *testing.T) {
	ctx := context.Background()
	rt := New()

	exists, err := rt.ImageExists(ctx, "taskcommander/disk-usage:latest")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, rt.BuildImage(ctx, "/tmp/ctx", "taskcommander/disk-usage:latest"))

	exists, err = rt.ImageExists(ctx, "taskcommander/disk-usage:latest")
	require.NoError(t, err)
	assert.True(t, exists)

	handle, err := rt.Run(ctx, runtime.RunSpec{ImageTag: "taskcommander/disk-usage:latest"})
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Running())

	result, err := rt.Inspect(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, runtime.StateRunning, result.State)

	rt.SetState(handle.ID, runtime.StateExited, 0)
	result, err = rt.Inspect(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, runtime.StateExited, result.State)

	require.NoError(t, rt.Remove(ctx, handle))
	_, err = rt.Inspect(ctx, handle)
	assert.Error(t, err)
}

func TestListAllFiltersByImagePrefix(t *testing.T) {
	ctx := context.Background()
	rt := New()

	a, err := rt.Run(ctx, runtime.RunSpec{ImageTag: "taskcommander/disk-usage:latest"})
	require.NoError(t, err)
	_, err = rt.Run(ctx, runtime.RunSpec{ImageTag: "other/image:latest"})
	require.NoError(t, err)

	handles, err := rt.ListAll(ctx, "taskcommander/")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, a.ID, handles[0].ID)
}
