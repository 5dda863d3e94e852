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
	"fmt"
	"maps"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/canonical/velero-operator/internal/kube"
	"github.com/canonical/velero-operator/internal/storage"
)

// IsStorageConfigured reports whether the credentials secret and both
// storage locations exist.
func (v *Velero) IsStorageConfigured(ctx context.Context) (bool, error) {
	v.log.V(1).Info("Checking if Velero storage locations are configured")
	return v.allExist(ctx, v.storageResources())
}

// ConfigureStorageLocations creates the credentials secret, adds the
// provider plugin and creates the default backup and volume snapshot
// locations.
func (v *Velero) ConfigureStorageLocations(ctx context.Context, provider storage.Provider) error {
	v.log.Info("Configuring Velero storage locations",
		"backupLocation", BackupLocationName,
		"volumeSnapshotLocation", VolumeSnapshotLocationName,
		"namespace", v.namespace,
		"provider", provider.Plugin(),
		"pluginImage", provider.PluginImage(),
		"secret", SecretName)

	if err := v.createStorageSecret(ctx, provider); err != nil {
		return err
	}

	if err := v.createStorageLocations(ctx, provider); err != nil {
		// Leave nothing half configured so the next attempt starts clean.
		if rerr := v.RemoveStorageLocations(ctx); rerr != nil {
			v.log.Error(rerr, "Failed to clean up partially configured storage")
		}
		return err
	}

	v.log.Info("Velero storage locations configured successfully")
	return nil
}

// createStorageLocations adds the plugin and both storage locations through
// the velero CLI.
func (v *Velero) createStorageLocations(ctx context.Context, provider storage.Provider) error {
	credential := fmt.Sprintf("%s=%s", SecretName, SecretKey)

	plugin := NewCommand("plugin", "add").
		WithArgs(provider.PluginImage()).
		WithSwitch("confirm").
		WithNamespace(v.namespace)
	if _, err := v.run(ctx, plugin); err != nil {
		return newError(err, "Failed to add Velero provider plugin")
	}

	bsl := NewCommand("backup-location", "create").
		WithArgs(BackupLocationName).
		WithFlag("provider", provider.Plugin()).
		WithFlag("prefix", provider.Path()).
		WithFlag("bucket", provider.Bucket()).
		WithMap("config", provider.BackupLocationConfig()).
		WithFlag("credential", credential).
		WithSwitch("default").
		WithNamespace(v.namespace).
		WithMap("labels", ComponentLabels)
	if _, err := v.run(ctx, bsl); err != nil {
		return newError(err, "Failed to add Velero backup location")
	}

	vsl := NewCommand("snapshot-location", "create").
		WithArgs(VolumeSnapshotLocationName).
		WithFlag("provider", provider.Plugin()).
		WithMap("config", provider.SnapshotLocationConfig()).
		WithFlag("credential", credential).
		WithNamespace(v.namespace).
		WithMap("labels", ComponentLabels)
	if _, err := v.run(ctx, vsl); err != nil {
		return newError(err, "Failed to add Velero volume snapshot location")
	}

	return nil
}

func (v *Velero) createStorageSecret(ctx context.Context, provider storage.Provider) error {
	secret := &corev1.Secret{ObjectMeta: v.objectMeta(SecretName)}
	_, err := controllerutil.CreateOrUpdate(ctx, v.client, secret, func() error {
		if secret.Labels == nil {
			secret.Labels = map[string]string{}
		}
		maps.Copy(secret.Labels, ComponentLabels)
		secret.Type = corev1.SecretTypeOpaque
		secret.Data = map[string][]byte{SecretKey: []byte(provider.SecretData())}
		return nil
	})
	if err != nil {
		v.log.Error(err, "Failed to create secret", "name", SecretName, "namespace", v.namespace)
		return newError(err, "Failed to create secret for '%s' storage provider", provider.Plugin())
	}
	return nil
}

// RemoveStorageLocations deletes the credentials secret and the storage
// locations and drops the plugin init containers from the deployment.
func (v *Velero) RemoveStorageLocations(ctx context.Context) error {
	v.log.Info("Removing Velero storage locations", "namespace", v.namespace)

	for _, obj := range v.storageResources() {
		if err := kube.RemoveResource(ctx, v.client, obj); err != nil {
			return newError(err, "Failed to remove resource %s: %s", kindOf(obj), obj.GetName())
		}
	}

	deployment := &appsv1.Deployment{ObjectMeta: v.objectMeta(DeploymentName)}
	patch := client.RawPatch(client.Merge.Type(), []byte(`{"spec":{"template":{"spec":{"initContainers":null}}}}`))
	if err := v.client.Patch(ctx, deployment, patch, client.FieldOwner(FieldManager)); err != nil {
		v.log.Error(err, "Failed to patch deployment", "name", DeploymentName)
		return newError(err, "Failed to patch deployment %s", DeploymentName)
	}
	return nil
}
