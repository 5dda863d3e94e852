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

// StatusKind is the workload status reported to Juju.
type StatusKind string

const (
	StatusActive      StatusKind = "active"
	StatusBlocked     StatusKind = "blocked"
	StatusMaintenance StatusKind = "maintenance"
	StatusWaiting     StatusKind = "waiting"
)

// Status pairs a status kind with its message.
type Status struct {
	Kind    StatusKind
	Message string
}

func Active(msg string) Status      { return Status{Kind: StatusActive, Message: msg} }
func Blocked(msg string) Status     { return Status{Kind: StatusBlocked, Message: msg} }
func Maintenance(msg string) Status { return Status{Kind: StatusMaintenance, Message: msg} }
func Waiting(msg string) Status     { return Status{Kind: StatusWaiting, Message: msg} }

// LogLevel is a juju-log severity.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// LogLevel returns the level a status message is logged at.
func (s Status) LogLevel() LogLevel {
	if s.Kind == StatusBlocked {
		return LevelWarning
	}
	return LevelInfo
}
