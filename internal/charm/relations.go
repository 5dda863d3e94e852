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

package charm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	v0 "github.com/canonical/velero-operator/api/v0"
	"github.com/canonical/velero-operator/internal/hookenv"
	"github.com/canonical/velero-operator/internal/storage"
)

// relation is an established relation with its remote application.
type relation struct {
	Endpoint string
	ID       string
	App      string
}

// relations lists the relations on endpoint. During a relation-broken hook
// the departing relation is still reported by relation-ids and is skipped.
func (c *Charm) relations(ctx context.Context, endpoint string) ([]relation, error) {
	ids, err := c.hook.RelationIDs(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rels []relation
	for _, id := range ids {
		if c.event.RelationEvent == hookenv.RelationBroken && id == c.event.RelationID {
			continue
		}
		app, err := c.hook.RelationApp(ctx, id)
		if err != nil {
			return nil, err
		}
		rels = append(rels, relation{Endpoint: endpoint, ID: id, App: app})
	}
	return rels, nil
}

func (c *Charm) storageRelations(ctx context.Context) ([]relation, error) {
	var rels []relation
	for _, endpoint := range storageEndpoints {
		found, err := c.relations(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		rels = append(rels, found...)
	}
	return rels, nil
}

// storageRelation returns the single storage relation, or a status error
// when there is none or more than one.
func (c *Charm) storageRelation(ctx context.Context) (relation, error) {
	rels, err := c.storageRelations(ctx)
	if err != nil {
		return relation{}, err
	}
	endpoints := strings.Join(storageEndpoints, "|")
	switch len(rels) {
	case 0:
		return relation{}, blocked("Missing relation: [%s]", endpoints)
	case 1:
		return rels[0], nil
	}
	return relation{}, blocked("Only one Storage Provider should be related at the time: [%s]", endpoints)
}

// storageProvider builds the provider described by rel's application data.
func (c *Charm) storageProvider(ctx context.Context, rel relation) (storage.Provider, error) {
	data, err := c.hook.RelationAppData(ctx, rel.ID, rel.App)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &waitingError{msg: fmt.Sprintf("Waiting for %s relation data", rel.Endpoint)}
	}

	image := c.config.pluginImage(rel.Endpoint)
	switch rel.Endpoint {
	case S3Endpoint:
		return storage.NewS3Provider(image, data)
	case AzureEndpoint:
		principal, err := c.servicePrincipal(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewAzureProvider(image, data, principal)
	}
	return nil, fmt.Errorf("unknown storage endpoint %q", rel.Endpoint)
}

// servicePrincipal returns the Azure service principal shared over
// azure-service-principal, or nil when none is related yet.
func (c *Charm) servicePrincipal(ctx context.Context) (*storage.ServicePrincipal, error) {
	rels, err := c.relations(ctx, AzureServicePrincipalEndpoint)
	if err != nil || len(rels) == 0 {
		return nil, err
	}
	data, err := c.hook.RelationAppData(ctx, rels[0].ID, rels[0].App)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return storage.NewServicePrincipal(data)
}

// reconcileStorage configures the Velero storage locations from the storage
// relation unless they already exist. Missing or duplicate relations are left
// for the status checks to report.
func (c *Charm) reconcileStorage(ctx context.Context) error {
	rels, err := c.storageRelations(ctx)
	if err != nil || len(rels) != 1 {
		return err
	}

	configured, err := c.velero.IsStorageConfigured(ctx)
	if err != nil {
		return err
	}
	if configured {
		return nil
	}

	provider, err := c.storageProvider(ctx, rels[0])
	if err != nil {
		return err
	}
	if c.config.VerifyStorageCredentials {
		c.logf(ctx, hookenv.LevelInfo, "Verifying %s credentials for bucket '%s'", provider.Plugin(), provider.Bucket())
		if err := provider.Verify(ctx); err != nil {
			c.log.Error(err, "Storage credentials verification failed", "endpoint", rels[0].Endpoint)
			return blocked("Failed to verify %s credentials: %v", rels[0].Endpoint, err)
		}
	}
	return c.velero.ConfigureStorageLocations(ctx, provider)
}

// backupTargets returns the targets published over velero-backups. Invalid
// data bags are logged and skipped.
func (c *Charm) backupTargets(ctx context.Context) ([]v0.BackupTarget, error) {
	rels, err := c.relations(ctx, BackupsEndpoint)
	if err != nil {
		return nil, err
	}

	var targets []v0.BackupTarget
	for _, rel := range rels {
		data, err := c.hook.RelationAppData(ctx, rel.ID, rel.App)
		if err != nil {
			return nil, err
		}
		target, err := v0.ParseProviderData(data)
		if errors.Is(err, v0.ErrIncompleteData) {
			c.log.V(1).Info("Backup target not published yet", "app", rel.App, "relation", rel.ID)
			continue
		}
		if err != nil {
			c.logf(ctx, hookenv.LevelWarning, "Invalid backup target from %s (relation %s): %v", rel.App, rel.ID, err)
			continue
		}
		targets = append(targets, *target)
	}
	return targets, nil
}

// backupTarget finds the target named "app:endpoint". It returns nil when no
// related application publishes it.
func (c *Charm) backupTarget(ctx context.Context, name string) (*v0.BackupTarget, error) {
	targets, err := c.backupTargets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].Name() == name {
			return &targets[i], nil
		}
	}
	return nil, nil
}
