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
	"sort"
	"strings"
)

// CommandBuilder builds velero command arguments.
type CommandBuilder struct {
	args []string
}

// NewCommand creates a new command builder for a (possibly nested) command,
// e.g. NewCommand("backup-location", "create").
func NewCommand(cmd ...string) *CommandBuilder {
	return &CommandBuilder{args: append([]string{}, cmd...)}
}

// WithArgs adds positional arguments.
func (b *CommandBuilder) WithArgs(args ...string) *CommandBuilder {
	b.args = append(b.args, args...)
	return b
}

// WithFlag adds --name=value. Empty values are skipped.
func (b *CommandBuilder) WithFlag(name, value string) *CommandBuilder {
	if value != "" {
		b.args = append(b.args, fmt.Sprintf("--%s=%s", name, value))
	}
	return b
}

// WithBool adds --name=true or --name=false.
func (b *CommandBuilder) WithBool(name string, value bool) *CommandBuilder {
	b.args = append(b.args, fmt.Sprintf("--%s=%t", name, value))
	return b
}

// WithSwitch adds a valueless --name flag.
func (b *CommandBuilder) WithSwitch(name string) *CommandBuilder {
	b.args = append(b.args, "--"+name)
	return b
}

// WithMap adds --name=k1=v1,k2=v2 with keys sorted. Empty maps are skipped.
func (b *CommandBuilder) WithMap(name string, values map[string]string) *CommandBuilder {
	if len(values) == 0 {
		return b
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values[k])
	}
	return b.WithFlag(name, strings.Join(pairs, ","))
}

// WithNamespace adds the --namespace flag.
func (b *CommandBuilder) WithNamespace(namespace string) *CommandBuilder {
	return b.WithFlag("namespace", namespace)
}

// WithOutput adds the -o flag.
func (b *CommandBuilder) WithOutput(format string) *CommandBuilder {
	if format != "" {
		b.args = append(b.args, "-o", format)
	}
	return b
}

// Build returns the command arguments.
func (b *CommandBuilder) Build() []string {
	return append([]string{}, b.args...)
}

// String returns the command as a string.
func (b *CommandBuilder) String() string {
	return strings.Join(b.args, " ")
}
