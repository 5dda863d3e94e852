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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
)

// Tools wraps the hook tools available to a running charm.
type Tools struct {
	runner Runner
	log    logr.Logger
}

// NewTools creates a Tools using the given runner.
func NewTools(runner Runner, log logr.Logger) *Tools {
	return &Tools{runner: runner, log: log}
}

func (t *Tools) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	out, err := t.runner.Run(ctx, tool, args...)
	if err != nil {
		return nil, errors.Annotatef(err, "running %s", tool)
	}
	return out, nil
}

func (t *Tools) runJSON(ctx context.Context, out any, tool string, args ...string) error {
	raw, err := t.run(ctx, tool, append(args, "--format=json")...)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Annotatef(err, "decoding %s output", tool)
	}
	return nil
}

// Config decodes the charm configuration into out.
func (t *Tools) Config(ctx context.Context, out any) error {
	return t.runJSON(ctx, out, "config-get")
}

// ActionParams decodes the parameters of the running action into out.
func (t *Tools) ActionParams(ctx context.Context, out any) error {
	return t.runJSON(ctx, out, "action-get")
}

// ActionSet records action results. Nested maps are flattened into the
// dotted keys action-set expects.
func (t *Tools) ActionSet(ctx context.Context, results map[string]any) error {
	flat := map[string]string{}
	flatten("", results, flat)
	if len(flat) == 0 {
		return nil
	}
	_, err := t.run(ctx, "action-set", keyValueArgs(flat)...)
	return err
}

// ActionFail marks the running action as failed.
func (t *Tools) ActionFail(ctx context.Context, msg string) error {
	_, err := t.run(ctx, "action-fail", msg)
	return err
}

// ActionLog sends a progress message to the action's caller.
func (t *Tools) ActionLog(ctx context.Context, msg string) error {
	_, err := t.run(ctx, "action-log", msg)
	return err
}

// SetStatus sets the unit workload status.
func (t *Tools) SetStatus(ctx context.Context, status Status) error {
	_, err := t.run(ctx, "status-set", string(status.Kind), status.Message)
	return err
}

// Log writes to the unit's debug-log.
func (t *Tools) Log(ctx context.Context, level LogLevel, msg string) error {
	_, err := t.run(ctx, "juju-log", "-l", string(level), msg)
	return err
}

// IsLeader reports whether this unit is the application leader.
func (t *Tools) IsLeader(ctx context.Context) (bool, error) {
	var leader bool
	if err := t.runJSON(ctx, &leader, "is-leader"); err != nil {
		return false, err
	}
	return leader, nil
}

// RelationIDs lists the relation ids established on an endpoint.
func (t *Tools) RelationIDs(ctx context.Context, endpoint string) ([]string, error) {
	var ids []string
	if err := t.runJSON(ctx, &ids, "relation-ids", endpoint); err != nil {
		return nil, err
	}
	return ids, nil
}

// RelationApp returns the remote application of a relation.
func (t *Tools) RelationApp(ctx context.Context, relationID string) (string, error) {
	raw, err := t.run(ctx, "relation-list", "-r", relationID, "--app")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// RelationAppData reads the application data bag of app on a relation.
func (t *Tools) RelationAppData(ctx context.Context, relationID, app string) (map[string]string, error) {
	data := map[string]string{}
	if err := t.runJSON(ctx, &data, "relation-get", "-r", relationID, "--app", "-", app); err != nil {
		return nil, err
	}
	return data, nil
}

// SetRelationAppData writes this application's data bag. Only the leader
// may do so.
func (t *Tools) SetRelationAppData(ctx context.Context, relationID string, data map[string]string) error {
	args := append([]string{"-r", relationID, "--app"}, keyValueArgs(data)...)
	_, err := t.run(ctx, "relation-set", args...)
	return err
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case map[string]string:
			for nk, nv := range val {
				out[key+"."+nk] = nv
			}
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func keyValueArgs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k+"="+m[k])
	}
	return args
}
