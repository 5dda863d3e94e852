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
	"context"
	"errors"
	"strings"
)

// ErrEmptyCommand is returned by RunCLICommand when no arguments are given.
var ErrEmptyCommand = errors.New("command cannot be empty")

func (v *Velero) run(ctx context.Context, cmd *CommandBuilder) (string, error) {
	args := cmd.Build()
	v.log.V(1).Info("Running velero", "command", cmd.String())
	stdout, stderr, err := v.executor.Run(ctx, args)
	if err != nil {
		cliErr := &CLIError{
			Args:     args,
			ExitCode: exitCode(err),
			Stdout:   string(stdout),
			Stderr:   string(stderr),
			Err:      err,
		}
		v.log.Error(err, cliErr.Error(), "stdout", cliErr.Stdout, "stderr", cliErr.Stderr)
		return "", cliErr
	}
	return strings.TrimSpace(string(stdout)), nil
}

// RunCLICommand runs an arbitrary velero command against the operator's
// namespace and returns its output.
func (v *Velero) RunCLICommand(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrEmptyCommand
	}
	out, err := v.run(ctx, NewCommand(args...).WithNamespace(v.namespace))
	if err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			cliErr.Args = args
		}
		return "", err
	}
	return out, nil
}
