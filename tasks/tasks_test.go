package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mnicolasvega/taskcommander/pkg/task"
)

func TestDirectoryWatchRunsAgainstTempDir(t *testing.T) {
	dir := t.TempDir()
	dw := &DirectoryWatchTask{}

	result, err := dw.Run(task.Params{"watch_dir": dir})
	assert.NoError(t, err)
	assert.Equal(t, 0, result["count"])
}

func TestDirectoryWatchErrorsOnMissingDir(t *testing.T) {
	dw := &DirectoryWatchTask{}
	_, err := dw.Run(task.Params{"watch_dir": "/nonexistent/path/for/test"})
	assert.Error(t, err)
}

func TestMediaIngestIsKeepAlive(t *testing.T) {
	mi := &MediaIngestTask{}
	interval, keepAlive := mi.Interval()
	assert.Equal(t, 0, interval)
	assert.True(t, keepAlive)
}

func TestMediaIngestExposesDeclaredPort(t *testing.T) {
	mi := &MediaIngestTask{}
	ports := mi.Ports(task.Params{"port": float64(9100)})
	assert.Equal(t, map[int]int{9100: 9100}, ports)
}

func TestTranscriptionDeclaresPipAndAptDependencies(t *testing.T) {
	tr := &TranscriptionTask{}
	deps := tr.Dependencies()
	assert.NotEmpty(t, deps.Pip)
	assert.NotEmpty(t, deps.Apt)
	assert.True(t, tr.RequiresConnection())
}

func TestAllBuiltinTasksAreRegistered(t *testing.T) {
	for _, key := range []string{"directory_watch", "system_monitor", "transcription", "media_ingest"} {
		_, ok := task.Lookup(key)
		assert.True(t, ok, "expected %s to be registered", key)
	}
}
