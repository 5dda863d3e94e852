/*
Copyright 2025 Canonical Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package velero

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
)

// DefaultBinary is where the charm ships the Velero CLI.
const DefaultBinary = "./velero"

// Executor runs the Velero CLI.
type Executor interface {
	// Run executes the CLI with args and returns its stdout and stderr.
	Run(ctx context.Context, args []string) ([]byte, []byte, error)
}

// DefaultExecutor implements Executor using the velero binary.
type DefaultExecutor struct {
	binary string
	log    logr.Logger
}

// NewExecutorWithBinary creates a velero executor. An empty binary falls
// back to DefaultBinary.
func NewExecutorWithBinary(binary string, log logr.Logger) *DefaultExecutor {
	if binary == "" {
		binary = DefaultBinary
	}
	return &DefaultExecutor{
		binary: binary,
		log:    log,
	}
}

// Run executes the velero binary.
func (e *DefaultExecutor) Run(ctx context.Context, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, e.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.V(1).Info("executing velero command", "args", strings.Join(args, " "))

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// exitCode extracts the process exit code, or -1 if the command never ran.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
