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

// Package charm handles the hooks and actions Juju dispatches to the
// velero-operator charm.
package charm

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v0 "github.com/canonical/velero-operator/api/v0"
	"github.com/canonical/velero-operator/internal/hookenv"
	"github.com/canonical/velero-operator/internal/notifications"
	"github.com/canonical/velero-operator/internal/storage"
	"github.com/canonical/velero-operator/internal/velero"
)

// Relation endpoints.
const (
	S3Endpoint                    = "s3-credentials"
	AzureEndpoint                 = "azure-credentials"
	AzureServicePrincipalEndpoint = "azure-service-principal"
	BackupsEndpoint               = "velero-backups"
	MetricsEndpoint               = "metrics-endpoint"
)

var storageEndpoints = []string{S3Endpoint, AzureEndpoint}

// HookContext is the subset of the Juju hook tools the charm uses.
type HookContext interface {
	Config(ctx context.Context, out any) error
	ActionParams(ctx context.Context, out any) error
	ActionSet(ctx context.Context, results map[string]any) error
	ActionFail(ctx context.Context, msg string) error
	ActionLog(ctx context.Context, msg string) error
	SetStatus(ctx context.Context, status hookenv.Status) error
	Log(ctx context.Context, level hookenv.LogLevel, msg string) error
	IsLeader(ctx context.Context) (bool, error)
	RelationIDs(ctx context.Context, endpoint string) ([]string, error)
	RelationApp(ctx context.Context, relationID string) (string, error)
	RelationAppData(ctx context.Context, relationID, app string) (map[string]string, error)
	SetRelationAppData(ctx context.Context, relationID string, data map[string]string) error
}

// VeleroManager drives the Velero installation in the model namespace.
type VeleroManager interface {
	Namespace() string

	Install(ctx context.Context, image string, useNodeAgent, defaultVolumesToFsBackup bool) error
	IsInstalled(ctx context.Context, useNodeAgent bool) (bool, error)
	Upgrade(ctx context.Context) error
	Remove(ctx context.Context)

	IsStorageConfigured(ctx context.Context) (bool, error)
	ConfigureStorageLocations(ctx context.Context, provider storage.Provider) error
	RemoveStorageLocations(ctx context.Context) error

	RemoveNodeAgent(ctx context.Context) error
	UpdateDeploymentImage(ctx context.Context, image string) error
	UpdateNodeAgentImage(ctx context.Context, image string) error
	UpdatePluginImage(ctx context.Context, image string) error
	UpdateDeploymentFlags(ctx context.Context, defaultVolumesToFsBackup bool) error

	CheckDeployment(ctx context.Context) error
	CheckNodeAgent(ctx context.Context) error
	CheckStorageLocations(ctx context.Context) error

	RunCLICommand(ctx context.Context, args []string) (string, error)
	CreateBackup(ctx context.Context, prefix string, spec v0.BackupSpec, defaultVolumesToFsBackup bool, labels, annotations map[string]string) (string, error)
	CreateRestore(ctx context.Context, backupUID string, policy velerov1api.PolicyType, labels, annotations map[string]string) (string, error)
	ListBackups(ctx context.Context, labels map[string]string) ([]velero.BackupInfo, error)
	CreateSchedule(ctx context.Context, prefix, expr string, spec v0.BackupSpec, defaultVolumesToFsBackup bool, labels map[string]string, now time.Time) (string, time.Time, error)
	ListSchedules(ctx context.Context, labels map[string]string) ([]velero.ScheduleInfo, error)
}

var _ VeleroManager = (*velero.Velero)(nil)

// Notifier reports backup and restore outcomes.
type Notifier interface {
	NotifyBackupSuccess(ctx context.Context, config notifications.Config, target, namespace, backupName string, start time.Time, duration time.Duration) error
	NotifyBackupFailure(ctx context.Context, config notifications.Config, target, namespace, backupName, errorMsg string, start time.Time, duration time.Duration) error
	NotifyRestoreSuccess(ctx context.Context, config notifications.Config, backupUID, namespace, restoreName string, start time.Time, duration time.Duration) error
	NotifyRestoreFailure(ctx context.Context, config notifications.Config, backupUID, namespace, restoreName, errorMsg string, start time.Time, duration time.Duration) error
}

// Charm holds the state of a single hook or action invocation.
type Charm struct {
	hook     HookContext
	velero   VeleroManager
	client   client.Client
	notifier Notifier
	log      logr.Logger

	// now is replaced in tests.
	now func() time.Time

	event  hookenv.Event
	config Config
}

// New creates a Charm. The client is only used to verify the charm's
// Kubernetes permissions; Velero resources go through vel.
func New(hook HookContext, vel VeleroManager, c client.Client, notifier Notifier, log logr.Logger) *Charm {
	return &Charm{
		hook:     hook,
		velero:   vel,
		client:   c,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Dispatch handles ev. The returned error is reserved for failures talking
// to Juju itself; problems with Velero or its configuration end up in the
// unit status or the action result.
func (c *Charm) Dispatch(ctx context.Context, ev hookenv.Event) error {
	c.event = ev
	c.log = c.log.WithValues("event", ev.Name)

	if err := c.hook.Config(ctx, &c.config); err != nil {
		return err
	}

	if ev.Kind == hookenv.KindAction {
		return c.runAction(ctx)
	}
	return c.runHook(ctx)
}

// checkAccess verifies the charm has been trusted with cluster access.
func (c *Charm) checkAccess(ctx context.Context) error {
	pods := &corev1.PodList{}
	if err := c.client.List(ctx, pods, client.InNamespace(c.velero.Namespace()), client.Limit(1)); err != nil {
		return &accessError{err: err}
	}
	return nil
}
