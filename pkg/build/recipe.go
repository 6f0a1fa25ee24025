// Package build turns a task.Task plus its invocation parameters into the
// image, command, mounts, ports, network mode, and resource limits the
// Container Runtime Adapter needs to start it, adapted from the original
// implementation's Builder.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mnicolasvega/taskcommander/pkg/task"
)

// ImageTag returns the engine tag a task's built image is published under.
// The Cleaner relies on every image this package builds sharing this
// prefix.
func ImageTag(name string) string {
	return "task-commander:" + name
}

// dockerfileTemplate assumes the build context's container/ subdirectory
// already holds a statically linked launcher binary, staged there by
// Builder.writeContext from the release's cmd/launcher build output
// before BuildImage is called. python remains in the base image because
// a task's Dependencies() may still name pip packages a Python helper
// script shells out to from within Run.
const dockerfileTemplate = `FROM python:3.12-slim

{{task.apt_packages}}
{{task.env_vars}}

WORKDIR /app
COPY container/ /app/

LABEL task.name="{{task.name}}"
`

// GenerateRecipe renders the Dockerfile template for t and writes it to
// <taskDir>/Dockerfile, substituting the three markers the template
// declares: the apt-package block, the environment-variable block, and
// the task's literal name.
func GenerateRecipe(t task.Task, taskDir string) error {
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("build: create recipe dir: %w", err)
	}

	deps := t.Dependencies()
	content := dockerfileTemplate
	content = strings.ReplaceAll(content, "{{task.apt_packages}}", aptBlock(deps.Apt))
	content = strings.ReplaceAll(content, "{{task.env_vars}}", envBlock(deps.Env))
	content = strings.ReplaceAll(content, "{{task.name}}", t.Name())

	path := RecipePath(taskDir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("build: write dockerfile: %w", err)
	}
	return nil
}

// RecipePath returns the expected location of a task's generated
// Dockerfile, used both to write it and to test for its presence during
// the rebuild decision.
func RecipePath(taskDir string) string {
	return filepath.Join(taskDir, "Dockerfile")
}

func aptBlock(packages []string) string {
	if len(packages) == 0 {
		return ""
	}
	var lines []string
	lines = append(lines, "# task-declared system packages")
	lines = append(lines, "RUN apt-get update \\")
	for i, pkg := range packages {
		sep := " \\"
		if i == len(packages)-1 {
			sep = ""
		}
		lines = append(lines, fmt.Sprintf("    && apt-get install -y %s%s", pkg, sep))
	}
	lines = append(lines, "RUN apt-get clean && rm -rf /var/lib/apt/lists/*")
	return strings.Join(lines, "\n")
}

func envBlock(vars []string) string {
	if len(vars) == 0 {
		return ""
	}
	lines := []string{"# task-declared environment variables"}
	for _, v := range vars {
		lines = append(lines, "ENV "+v)
	}
	return strings.Join(lines, "\n")
}
