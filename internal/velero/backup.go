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
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"

	v0 "github.com/canonical/velero-operator/api/v0"
	"github.com/canonical/velero-operator/internal/kube"
)

// BackupInfo is the summary of a Velero Backup returned by ListBackups.
type BackupInfo struct {
	UID                 string
	Name                string
	Labels              map[string]string
	Annotations         map[string]string
	Phase               string
	StartTimestamp      time.Time
	CompletionTimestamp *time.Time
}

// ScheduleInfo is the summary of a Velero Schedule returned by ListSchedules.
type ScheduleInfo struct {
	Name       string
	Schedule   string
	Labels     map[string]string
	Phase      string
	LastBackup *time.Time
}

func (v *Velero) backupSpec(spec v0.BackupSpec, defaultVolumesToFsBackup bool) (velerov1api.BackupSpec, error) {
	ttl, err := spec.TTLDuration()
	if err != nil {
		return velerov1api.BackupSpec{}, err
	}

	out := velerov1api.BackupSpec{
		StorageLocation:          BackupLocationName,
		VolumeSnapshotLocations:  []string{VolumeSnapshotLocationName},
		IncludedNamespaces:       spec.IncludeNamespaces,
		IncludedResources:        spec.IncludeResources,
		ExcludedNamespaces:       spec.ExcludeNamespaces,
		ExcludedResources:        spec.ExcludeResources,
		TTL:                      metav1.Duration{Duration: ttl},
		IncludeClusterResources:  &spec.IncludeClusterResources,
		DefaultVolumesToFsBackup: &defaultVolumesToFsBackup,
	}
	if len(spec.LabelSelector) > 0 {
		out.LabelSelector = &metav1.LabelSelector{MatchLabels: spec.LabelSelector}
	}
	return out, nil
}

// CreateBackup creates a Backup named after prefix and waits until Velero
// reports a final phase. It returns the generated backup name.
func (v *Velero) CreateBackup(ctx context.Context, prefix string, spec v0.BackupSpec, defaultVolumesToFsBackup bool, labels, annotations map[string]string) (string, error) {
	backupSpec, err := v.backupSpec(spec, defaultVolumesToFsBackup)
	if err != nil {
		return "", newError(err, "Failed to create Velero Backup '%s': %v", prefix, err)
	}

	backup := &velerov1api.Backup{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: prefix,
			Namespace:    v.namespace,
			Labels:       labels,
			Annotations:  annotations,
		},
		Spec: backupSpec,
	}

	v.log.Info("Creating Velero Backup", "prefix", prefix, "spec", spec)
	if err := v.client.Create(ctx, backup); err != nil {
		v.log.Error(err, "Failed to create Velero Backup", "prefix", prefix)
		return "", newError(err, "Failed to create Velero Backup '%s'", prefix)
	}

	v.log.Info("Checking the Velero Backup completeness", "name", backup.Name)
	if err := v.WaitForBackup(ctx, backup.Name); err != nil {
		return backup.Name, err
	}
	return backup.Name, nil
}

// WaitForBackup polls the named Backup until it completes. PartiallyFailed
// and Failed end the wait with a BackupStatusError.
func (v *Velero) WaitForBackup(ctx context.Context, name string) error {
	key := client.ObjectKey{Namespace: v.namespace, Name: name}
	return kube.RetryCheck(ctx, v.OperationChecks, func(ctx context.Context) error {
		backup := &velerov1api.Backup{}
		if err := v.client.Get(ctx, key, backup); err != nil {
			return err
		}

		switch backup.Status.Phase {
		case velerov1api.BackupPhaseCompleted:
			return nil
		case velerov1api.BackupPhasePartiallyFailed, velerov1api.BackupPhaseFailed:
			return kube.Fatal(&BackupStatusError{Name: name, Reason: fmt.Sprintf("Status is '%s'", backup.Status.Phase)})
		case "":
			return &BackupStatusError{Name: name, Reason: "No status or phase present"}
		default:
			return &StatusError{Msg: fmt.Sprintf("Velero Backup is still in progress: '%s'", backup.Status.Phase)}
		}
	})
}

// GetBackupNameByUID returns the name of the Backup with the given UID, or
// an empty string when there is none.
func (v *Velero) GetBackupNameByUID(ctx context.Context, uid string) (string, error) {
	backups := &velerov1api.BackupList{}
	if err := v.client.List(ctx, backups, client.InNamespace(v.namespace)); err != nil {
		return "", err
	}
	for i := range backups.Items {
		if string(backups.Items[i].UID) == uid {
			return backups.Items[i].Name, nil
		}
	}
	return "", nil
}

// CreateRestore restores the Backup with the given UID and waits until
// Velero reports a final phase. It returns the generated restore name.
func (v *Velero) CreateRestore(ctx context.Context, backupUID string, policy velerov1api.PolicyType, labels, annotations map[string]string) (string, error) {
	v.log.Info("Checking if Velero Backup exists", "uid", backupUID)
	backupName, err := v.GetBackupNameByUID(ctx, backupUID)
	if err != nil {
		return "", newError(err, "Failed to look up Velero Backup with UID '%s'", backupUID)
	}
	if backupName == "" {
		return "", newError(nil, "Velero Backup with UID '%s' not found", backupUID)
	}
	if policy == "" {
		policy = velerov1api.PolicyTypeNone
	}

	restore := &velerov1api.Restore{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: backupName,
			Namespace:    v.namespace,
			Labels:       labels,
			Annotations:  annotations,
		},
		Spec: velerov1api.RestoreSpec{
			BackupName:             backupName,
			ExistingResourcePolicy: policy,
		},
	}

	v.log.Info("Creating Velero Restore", "backup", backupName, "existingResourcePolicy", policy)
	if err := v.client.Create(ctx, restore); err != nil {
		v.log.Error(err, "Failed to create Velero Restore", "backup", backupName)
		return "", newError(err, "Failed to create Velero Restore from backup '%s'", backupName)
	}

	v.log.Info("Checking the Velero Restore completeness", "name", restore.Name)
	if err := v.WaitForRestore(ctx, restore.Name); err != nil {
		return restore.Name, err
	}
	return restore.Name, nil
}

// WaitForRestore polls the named Restore until it completes.
func (v *Velero) WaitForRestore(ctx context.Context, name string) error {
	key := client.ObjectKey{Namespace: v.namespace, Name: name}
	return kube.RetryCheck(ctx, v.OperationChecks, func(ctx context.Context) error {
		restore := &velerov1api.Restore{}
		if err := v.client.Get(ctx, key, restore); err != nil {
			return err
		}

		switch restore.Status.Phase {
		case velerov1api.RestorePhaseCompleted:
			return nil
		case velerov1api.RestorePhasePartiallyFailed, velerov1api.RestorePhaseFailed:
			reason := fmt.Sprintf("Status is '%s'", restore.Status.Phase)
			if restore.Status.FailureReason != "" {
				reason += ": " + restore.Status.FailureReason
			}
			return kube.Fatal(&RestoreStatusError{Name: name, Reason: reason})
		case "":
			return &RestoreStatusError{Name: name, Reason: "No status or phase present"}
		default:
			return &StatusError{Msg: fmt.Sprintf("Velero Restore is still in progress: '%s'", restore.Status.Phase)}
		}
	})
}

// ListBackups returns the backups matching labels. Backups without labels
// or without a start timestamp were not made through the operator and are
// skipped.
func (v *Velero) ListBackups(ctx context.Context, labels map[string]string) ([]BackupInfo, error) {
	backups := &velerov1api.BackupList{}
	opts := []client.ListOption{client.InNamespace(v.namespace)}
	if len(labels) > 0 {
		opts = append(opts, client.MatchingLabels(labels))
	}
	if err := v.client.List(ctx, backups, opts...); err != nil {
		v.log.Error(err, "Failed to list Velero Backups")
		return nil, newError(err, "Failed to list Velero Backups")
	}

	infos := make([]BackupInfo, 0, len(backups.Items))
	for i := range backups.Items {
		b := &backups.Items[i]
		if b.Name == "" || b.UID == "" {
			v.log.Info("Backup metadata is missing or has no name")
			continue
		}
		if len(b.Labels) == 0 {
			v.log.Info("Backup metadata labels are missing", "name", b.Name)
			continue
		}
		if b.Status.Phase == "" || b.Status.StartTimestamp == nil {
			v.log.Info("Backup status is missing", "name", b.Name)
			continue
		}

		info := BackupInfo{
			UID:            string(b.UID),
			Name:           b.Name,
			Labels:         b.Labels,
			Annotations:    b.Annotations,
			Phase:          string(b.Status.Phase),
			StartTimestamp: b.Status.StartTimestamp.Time,
		}
		if b.Status.CompletionTimestamp != nil {
			t := b.Status.CompletionTimestamp.Time
			info.CompletionTimestamp = &t
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ErrInvalidSchedule is returned for cron expressions Velero would reject.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ParseSchedule validates a standard 5-field cron expression or a
// descriptor such as "@daily".
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return schedule, nil
}

// CreateSchedule creates a Velero Schedule running spec on expr. It returns
// the generated name and the next run after now.
func (v *Velero) CreateSchedule(ctx context.Context, prefix, expr string, spec v0.BackupSpec, defaultVolumesToFsBackup bool, labels map[string]string, now time.Time) (string, time.Time, error) {
	parsed, err := ParseSchedule(expr)
	if err != nil {
		return "", time.Time{}, newError(err, "Invalid schedule '%s'", expr)
	}
	backupSpec, err := v.backupSpec(spec, defaultVolumesToFsBackup)
	if err != nil {
		return "", time.Time{}, newError(err, "Failed to create Velero Schedule '%s': %v", prefix, err)
	}

	schedule := &velerov1api.Schedule{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: prefix,
			Namespace:    v.namespace,
			Labels:       labels,
		},
		Spec: velerov1api.ScheduleSpec{
			Template: backupSpec,
			Schedule: expr,
		},
	}

	v.log.Info("Creating Velero Schedule", "prefix", prefix, "schedule", expr)
	if err := v.client.Create(ctx, schedule); err != nil {
		v.log.Error(err, "Failed to create Velero Schedule", "prefix", prefix)
		return "", time.Time{}, newError(err, "Failed to create Velero Schedule '%s'", prefix)
	}
	return schedule.Name, parsed.Next(now), nil
}

// ListSchedules returns the schedules matching labels.
func (v *Velero) ListSchedules(ctx context.Context, labels map[string]string) ([]ScheduleInfo, error) {
	schedules := &velerov1api.ScheduleList{}
	opts := []client.ListOption{client.InNamespace(v.namespace)}
	if len(labels) > 0 {
		opts = append(opts, client.MatchingLabels(labels))
	}
	if err := v.client.List(ctx, schedules, opts...); err != nil {
		v.log.Error(err, "Failed to list Velero Schedules")
		return nil, newError(err, "Failed to list Velero Schedules")
	}

	infos := make([]ScheduleInfo, 0, len(schedules.Items))
	for i := range schedules.Items {
		s := &schedules.Items[i]
		info := ScheduleInfo{
			Name:     s.Name,
			Schedule: s.Spec.Schedule,
			Labels:   s.Labels,
			Phase:    string(s.Status.Phase),
		}
		if s.Status.LastBackup != nil {
			t := s.Status.LastBackup.Time
			info.LastBackup = &t
		}
		infos = append(infos, info)
	}
	return infos, nil
}
