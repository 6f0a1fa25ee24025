package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTask struct{ name string }

func (s stubTask) Name() string                             { return s.name }
func (s stubTask) Interval() (int, bool)                    { return 0, true }
func (s stubTask) Run(Params) (Result, error)                { return Result{}, nil }
func (s stubTask) TextOutput(Result) string                  { return "" }
func (s stubTask) HTMLOutput(Result) string                  { return "" }
func (s stubTask) Dependencies() Dependencies                { return Dependencies{} }
func (s stubTask) Volumes(Params) []Volume                   { return nil }
func (s stubTask) Ports(Params) map[int]int                  { return nil }
func (s stubTask) RequiresConnection() bool                  { return false }
func (s stubTask) Resources() Resources                      { return Resources{CPUCores: 0.5, MemoryGBs: 1} }
func (s stubTask) MaxTimeExpected() int                       { return 0 }

func TestNameRegexp(t *testing.T) {
	valid := []string{"disk_usage", "Transcribe-1", "_hidden", "a"}
	invalid := []string{"1start", "has space", "dash-then!bang", ""}

	for _, name := range valid {
		assert.Truef(t, NameRegexp.MatchString(name), "expected %q to be valid", name)
	}
	for _, name := range invalid {
		assert.Falsef(t, NameRegexp.MatchString(name), "expected %q to be invalid", name)
	}
}

func TestRegisterAndLookup(t *testing.T) {
	key := "registry-test-task"
	Register(key, func() Task { return stubTask{name: key} })

	got, ok := Lookup(key)
	require.True(t, ok)
	assert.Equal(t, key, got.Name())

	_, ok = Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	key := "registry-test-duplicate"
	Register(key, func() Task { return stubTask{name: key} })

	assert.Panics(t, func() {
		Register(key, func() Task { return stubTask{name: key} })
	})
}

func TestRegisterInvalidKeyPanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("1-invalid", func() Task { return stubTask{} })
	})
}

func TestDependenciesLen(t *testing.T) {
	d := Dependencies{Pip: []string{"requests"}, Apt: []string{"curl", "jq"}}
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 0, Dependencies{}.Len())
}
