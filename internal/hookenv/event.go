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
	"fmt"
	"path"
	"strings"
)

// EventKind distinguishes hooks from actions.
type EventKind string

const (
	KindHook   EventKind = "hook"
	KindAction EventKind = "action"
)

// Relation hook suffixes.
const (
	RelationCreated  = "relation-created"
	RelationJoined   = "relation-joined"
	RelationChanged  = "relation-changed"
	RelationDeparted = "relation-departed"
	RelationBroken   = "relation-broken"
)

var relationSuffixes = []string{
	RelationCreated, RelationJoined, RelationChanged, RelationDeparted, RelationBroken,
}

// Event is the hook or action Juju asked the charm to handle.
type Event struct {
	Kind EventKind
	// Name is the hook name ("install", "s3-credentials-relation-changed")
	// or the action name ("run-cli").
	Name string

	// Relation fields are only set for relation hooks.
	Endpoint   string
	RelationID string
	RemoteApp  string
	// RelationEvent is one of the Relation* suffixes.
	RelationEvent string

	Unit      string
	ModelName string
	ModelUUID string
}

// IsRelation reports whether the event is a relation hook.
func (e Event) IsRelation() bool {
	return e.RelationEvent != ""
}

// EventFromEnv parses the dispatched event from the environment Juju sets
// up for the charm process.
func EventFromEnv(getenv func(string) string) (Event, error) {
	ev := Event{
		Unit:      getenv("JUJU_UNIT_NAME"),
		ModelName: getenv("JUJU_MODEL_NAME"),
		ModelUUID: getenv("JUJU_MODEL_UUID"),
	}

	dispatch := getenv("JUJU_DISPATCH_PATH")
	if dispatch == "" {
		if action := getenv("JUJU_ACTION_NAME"); action != "" {
			dispatch = "actions/" + action
		}
	}
	if dispatch == "" {
		return ev, fmt.Errorf("JUJU_DISPATCH_PATH is not set")
	}

	dir, name := path.Split(dispatch)
	switch strings.TrimSuffix(dir, "/") {
	case "hooks":
		ev.Kind = KindHook
	case "actions":
		ev.Kind = KindAction
	default:
		return ev, fmt.Errorf("unexpected dispatch path %q", dispatch)
	}
	ev.Name = name

	if ev.Kind == KindHook {
		for _, suffix := range relationSuffixes {
			if endpoint, ok := strings.CutSuffix(name, "-"+suffix); ok {
				ev.RelationEvent = suffix
				ev.Endpoint = endpoint
				break
			}
		}
		if ev.IsRelation() {
			if rel := getenv("JUJU_RELATION"); rel != "" {
				ev.Endpoint = rel
			}
			ev.RelationID = getenv("JUJU_RELATION_ID")
			ev.RemoteApp = getenv("JUJU_REMOTE_APP")
		}
	}
	return ev, nil
}
