package task

import "fmt"

// Factory constructs a fresh Task value. Registry entries store factories,
// not shared instances, so host and container-side callers never share
// mutable task state.
type Factory func() Task

var registry = map[string]Factory{}

// Register adds a task factory under key. Called from package init()
// functions in the tasks that implement this contract; a duplicate key is
// a programming error and panics at process start rather than silently
// shadowing a task.
func Register(key string, factory Factory) {
	if !NameRegexp.MatchString(key) {
		panic(fmt.Sprintf("task: invalid registry key %q", key))
	}
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("task: duplicate registry key %q", key))
	}
	registry[key] = factory
}

// Lookup resolves a registry key to a fresh Task instance. Both the
// Commander (host side) and the in-container launcher (with the key from
// its --task flag) call this same function, so a key resolves
// identically regardless of which process does the resolving.
func Lookup(key string) (Task, bool) {
	factory, ok := registry[key]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Keys returns every registered key. Order is not guaranteed; callers that
// need Commander's declaration order should use the task declarations in
// the config.Config passed to commander.New, not this function.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
