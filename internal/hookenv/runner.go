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

package hookenv

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
)

// Runner invokes a Juju hook tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// ExecRunner runs hook tools found on PATH, as Juju provides them to a
// running hook or action.
type ExecRunner struct {
	log logr.Logger
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(log logr.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// ToolError is returned when a hook tool exits unsuccessfully.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := e.Tool + " failed: " + e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Run executes the tool with the given arguments.
func (r *ExecRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Arguments may carry secrets (action results, relation data), so only
	// the tool name is traced.
	r.log.V(2).Info("executing hook tool", "tool", tool)

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), errors.Trace(&ToolError{
			Tool:   tool,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		})
	}
	return stdout.Bytes(), nil
}
