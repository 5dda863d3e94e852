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

// Package notifications reports the outcome of backups and restores run
// through charm actions.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

// EventType represents the type of notification event.
type EventType string

const (
	// EventTypeSuccess indicates a successful operation.
	EventTypeSuccess EventType = "success"
	// EventTypeFailure indicates a failed operation.
	EventTypeFailure EventType = "failure"
)

// Operation is the Velero operation an event reports on.
type Operation string

const (
	OperationBackup  Operation = "backup"
	OperationRestore Operation = "restore"
)

// Title returns the capitalised operation name.
func (o Operation) Title() string {
	switch o {
	case OperationBackup:
		return "Backup"
	case OperationRestore:
		return "Restore"
	}
	return string(o)
}

// Event represents a notification event.
type Event struct {
	Type      EventType
	Operation Operation
	// Target is the backup target ("app:endpoint") or, for restores, the
	// backup UID.
	Target string
	// Name of the Velero Backup or Restore, empty when it was never created.
	Name      string
	Namespace string
	Message   string
	Timestamp time.Time
	Duration  time.Duration
}

// Config contains configuration for all notification backends.
type Config struct {
	Pushgateway *PushgatewayConfig
	Ntfy        *NtfyConfig
}

// Enabled reports whether any backend is configured.
func (c Config) Enabled() bool {
	return (c.Pushgateway != nil && c.Pushgateway.URL != "") ||
		(c.Ntfy != nil && c.Ntfy.ServerURL != "")
}

// PushgatewayConfig contains Pushgateway configuration.
type PushgatewayConfig struct {
	URL     string
	JobName string
}

// NtfyConfig contains ntfy configuration.
type NtfyConfig struct {
	ServerURL     string
	Topic         string
	OnlyOnFailure bool
}

// Manager coordinates sending notifications to multiple backends.
type Manager struct {
	log         logr.Logger
	ntfy        *NtfyNotifier
	pushgateway *PushgatewayNotifier
}

// NewManager creates a new notification manager.
func NewManager(log logr.Logger) *Manager {
	return &Manager{
		log:         log,
		ntfy:        NewNtfyNotifier(log),
		pushgateway: NewPushgatewayNotifier(log),
	}
}

// Notify sends a notification to all configured backends.
func (m *Manager) Notify(ctx context.Context, config Config, event Event) error {
	if !config.Enabled() {
		return nil
	}

	var errs []error

	if config.Pushgateway != nil && config.Pushgateway.URL != "" {
		if err := m.pushgateway.Notify(ctx, *config.Pushgateway, event); err != nil {
			m.log.Error(err, "Failed to send notification to Pushgateway")
			errs = append(errs, fmt.Errorf("pushgateway: %w", err))
		}
	}

	if config.Ntfy != nil && config.Ntfy.ServerURL != "" {
		if !config.Ntfy.OnlyOnFailure || event.Type == EventTypeFailure {
			if err := m.ntfy.Notify(ctx, *config.Ntfy, event); err != nil {
				m.log.Error(err, "Failed to send notification to ntfy")
				errs = append(errs, fmt.Errorf("ntfy: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}

	return nil
}

// NotifyBackupSuccess sends a backup success notification.
func (m *Manager) NotifyBackupSuccess(ctx context.Context, config Config, target, namespace, backupName string, start time.Time, duration time.Duration) error {
	return m.Notify(ctx, config, Event{
		Type:      EventTypeSuccess,
		Operation: OperationBackup,
		Target:    target,
		Name:      backupName,
		Namespace: namespace,
		Message:   fmt.Sprintf("Backup completed successfully: %s", backupName),
		Timestamp: start,
		Duration:  duration,
	})
}

// NotifyBackupFailure sends a backup failure notification.
func (m *Manager) NotifyBackupFailure(ctx context.Context, config Config, target, namespace, backupName, errorMsg string, start time.Time, duration time.Duration) error {
	return m.Notify(ctx, config, Event{
		Type:      EventTypeFailure,
		Operation: OperationBackup,
		Target:    target,
		Name:      backupName,
		Namespace: namespace,
		Message:   fmt.Sprintf("Backup failed: %s", errorMsg),
		Timestamp: start,
		Duration:  duration,
	})
}

// NotifyRestoreSuccess sends a restore success notification.
func (m *Manager) NotifyRestoreSuccess(ctx context.Context, config Config, backupUID, namespace, restoreName string, start time.Time, duration time.Duration) error {
	return m.Notify(ctx, config, Event{
		Type:      EventTypeSuccess,
		Operation: OperationRestore,
		Target:    backupUID,
		Name:      restoreName,
		Namespace: namespace,
		Message:   fmt.Sprintf("Restore completed successfully from backup %s: %s", backupUID, restoreName),
		Timestamp: start,
		Duration:  duration,
	})
}

// NotifyRestoreFailure sends a restore failure notification.
func (m *Manager) NotifyRestoreFailure(ctx context.Context, config Config, backupUID, namespace, restoreName, errorMsg string, start time.Time, duration time.Duration) error {
	return m.Notify(ctx, config, Event{
		Type:      EventTypeFailure,
		Operation: OperationRestore,
		Target:    backupUID,
		Name:      restoreName,
		Namespace: namespace,
		Message:   fmt.Sprintf("Restore failed: %s", errorMsg),
		Timestamp: start,
		Duration:  duration,
	})
}
