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

// Package storage turns storage relation data into the settings Velero
// needs for its backup and volume snapshot locations.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/schema"
)

// Provider describes an object storage backend usable by Velero.
type Provider interface {
	// Plugin is the Velero provider name, e.g. "aws".
	Plugin() string
	// PluginImage is the image of the Velero plugin serving the provider.
	PluginImage() string
	// Bucket is the bucket or container backups are written to.
	Bucket() string
	// Path is an optional prefix inside the bucket.
	Path() string
	// SecretData is the credentials file mounted by Velero.
	SecretData() string
	BackupLocationConfig() map[string]string
	SnapshotLocationConfig() map[string]string
	// Verify checks that the credentials grant access to the bucket.
	Verify(ctx context.Context) error
}

// ValidationError lists the problems found in relation data.
type ValidationError struct {
	Config   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s errors: %s", e.Config, strings.Join(e.Problems, "; "))
}

type field struct {
	name     string
	checker  schema.Checker
	required bool
}

// coerce validates data against fields. Every missing required field is
// reported; type errors are reported after that.
func coerce(configName string, fields []field, data map[string]string) (map[string]string, error) {
	var problems []string
	schemaFields := schema.Fields{}
	defaults := schema.Defaults{}
	input := map[string]interface{}{}

	for _, f := range fields {
		schemaFields[f.name] = f.checker
		if !f.required {
			defaults[f.name] = schema.Omit
		}
		v, ok := data[f.name]
		if !ok || v == "" {
			if f.required {
				problems = append(problems, fmt.Sprintf("'%s' required", f.name))
			}
			continue
		}
		input[f.name] = v
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Config: configName, Problems: problems}
	}

	coerced, err := schema.FieldMap(schemaFields, defaults).Coerce(input, nil)
	if err != nil {
		return nil, &ValidationError{Config: configName, Problems: []string{fieldProblem(err.Error())}}
	}

	out := map[string]string{}
	for k, v := range coerced.(map[string]interface{}) {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// fieldProblem rewrites "name: message" as "'name' message".
func fieldProblem(msg string) string {
	name, rest, ok := strings.Cut(msg, ": ")
	if !ok {
		return msg
	}
	return fmt.Sprintf("'%s' %s", name, rest)
}
