// Package build assembles everything a containerised dispatch needs from
// a task: a cached or freshly built image, the shell command that
// bootstraps its environment and runs the launcher, its volumes, and its
// resource and network settings.
package build
