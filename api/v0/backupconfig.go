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

// Package v0 defines the data exchanged over the velero_backup_config
// relation interface.
package v0

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Application data bag keys published by a requirer.
const (
	SpecField         = "spec"
	AppField          = "app"
	RelationNameField = "relation_name"
)

var ttlPattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// BackupSpec describes what a related application wants backed up.
type BackupSpec struct {
	IncludeNamespaces       []string          `json:"include_namespaces"`
	IncludeResources        []string          `json:"include_resources"`
	ExcludeNamespaces       []string          `json:"exclude_namespaces"`
	ExcludeResources        []string          `json:"exclude_resources"`
	LabelSelector           map[string]string `json:"label_selector"`
	TTL                     *string           `json:"ttl"`
	IncludeClusterResources bool              `json:"include_cluster_resources"`
}

// Validate checks the TTL format. Hours, minutes and seconds are each
// optional but at least one of them must be present, e.g. "24h" or "10h10m10s".
func (s BackupSpec) Validate() error {
	if s.TTL == nil || *s.TTL == "" {
		return nil
	}
	if !ValidTTL(*s.TTL) {
		return fmt.Errorf("invalid TTL format %q, expected a duration such as 24h or 10h10m10s", *s.TTL)
	}
	return nil
}

// ValidTTL reports whether ttl is a duration like "1h", "30m" or "1h2m3s".
func ValidTTL(ttl string) bool {
	return strings.ContainsAny(ttl, "0123456789") && ttlPattern.MatchString(ttl)
}

// TTLDuration returns the parsed TTL, or zero when none is set.
func (s BackupSpec) TTLDuration() (time.Duration, error) {
	if s.TTL == nil || *s.TTL == "" {
		return 0, nil
	}
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return time.ParseDuration(*s.TTL)
}

// BackupTarget is what the provider side reads from a requirer's data bag.
type BackupTarget struct {
	App          string
	RelationName string
	Spec         BackupSpec
}

// Name returns the "app:endpoint" form used by the create-backup action.
func (t BackupTarget) Name() string {
	return t.App + ":" + t.RelationName
}

// RequirerData renders the application data bag a requirer publishes.
func RequirerData(app, relationName string, spec BackupSpec) (map[string]string, error) {
	if app == "" || relationName == "" {
		return nil, errors.New("app and relation name are required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup spec: %w", err)
	}
	return map[string]string{
		AppField:          app,
		RelationNameField: relationName,
		SpecField:         string(raw),
	}, nil
}

// ParseProviderData decodes a requirer's data bag. A bag without app or
// relation name has not been published yet and yields ErrIncompleteData.
func ParseProviderData(data map[string]string) (*BackupTarget, error) {
	app, relationName := data[AppField], data[RelationNameField]
	if app == "" || relationName == "" {
		return nil, ErrIncompleteData
	}
	target := &BackupTarget{App: app, RelationName: relationName}
	if raw := data[SpecField]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &target.Spec); err != nil {
			return nil, fmt.Errorf("invalid backup spec from %s: %w", target.Name(), err)
		}
	}
	if err := target.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup spec from %s: %w", target.Name(), err)
	}
	return target, nil
}

// ErrIncompleteData is returned when a requirer has not published its data.
var ErrIncompleteData = errors.New("incomplete velero backup config data")
