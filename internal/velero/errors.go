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
	"fmt"
	"strings"
)

// Error is a failed Velero operation. Its message is meant for the unit
// status; the cause carries the details.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Err }

func newError(cause error, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Err: cause}
}

// StatusError reports a Velero component or resource that is not ready.
type StatusError struct {
	Msg string
}

func (e *StatusError) Error() string { return e.Msg }

// BackupStatusError reports a backup that ended unsuccessfully.
type BackupStatusError struct {
	Name   string
	Reason string
}

func (e *BackupStatusError) Error() string {
	return fmt.Sprintf("Velero backup '%s' failed: %s", e.Name, e.Reason)
}

// RestoreStatusError reports a restore that ended unsuccessfully.
type RestoreStatusError struct {
	Name   string
	Reason string
}

func (e *RestoreStatusError) Error() string {
	return fmt.Sprintf("Velero restore '%s' failed: %s", e.Name, e.Reason)
}

// CLIError is a velero command exiting unsuccessfully.
type CLIError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CLIError) Error() string {
	return fmt.Sprintf("'velero %s' returned non-zero exit code: %d.", strings.Join(e.Args, " "), e.ExitCode)
}

func (e *CLIError) Unwrap() error { return e.Err }
