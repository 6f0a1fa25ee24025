// Package tasks holds the built-in task bodies registered with pkg/task
// at process start. Each file is one task, self-registered via init, and
// is plain application code written against the Task Contract — the
// Commander never imports a concrete task type.
package tasks
