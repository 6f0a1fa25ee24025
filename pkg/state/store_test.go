package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, "state.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadLastExecution(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveLastExecution("disk-usage", now))

	loaded, err := s.LoadLastExecution()
	require.NoError(t, err)
	got, ok := loaded["disk-usage"]
	require.True(t, ok)
	assert.True(t, got.Equal(now))
}

func TestSaveAndLoadOutputs(t *testing.T) {
	s := openTestStore(t)

	rec := OutputRecord{Text: "ok", HTML: "<p>ok</p>", Data: map[string]any{"count": float64(3)}}
	require.NoError(t, s.SaveOutput("disk-usage", rec))

	loaded, err := s.LoadOutputs()
	require.NoError(t, err)
	got, ok := loaded["disk-usage"]
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestLoadOutputsEmptyStore(t *testing.T) {
	s := openTestStore(t)
	loaded, err := s.LoadOutputs()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
