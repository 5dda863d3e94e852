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

	"github.com/canonical/velero-operator/internal/hookenv"
)

func (c *Charm) runHook(ctx context.Context) error {
	c.log.Info("Handling hook", "endpoint", c.event.Endpoint, "relation", c.event.RelationID)

	// Removal goes ahead whatever the state of the configuration.
	if c.event.Name == "remove" {
		return c.onRemove(ctx)
	}

	err := c.config.Validate()
	if err == nil {
		err = c.checkAccess(ctx)
	}
	if err == nil {
		err = c.handleHook(ctx)
	}
	if err == nil {
		return nil
	}

	var toolErr *hookenv.ToolError
	if errors.As(err, &toolErr) {
		return err
	}
	c.log.Error(err, "Hook failed")
	return c.setStatus(ctx, c.statusFor(err))
}

func (c *Charm) handleHook(ctx context.Context) error {
	switch c.event.Name {
	case "install":
		return c.onInstall(ctx)
	case "config-changed":
		return c.onConfigChanged(ctx)
	case "update-status":
		return c.updateStatus(ctx)
	case "upgrade-charm":
		return c.onUpgrade(ctx)
	case "leader-elected":
		return c.publishScrapeConfig(ctx)
	}

	switch c.event.Endpoint {
	case S3Endpoint, AzureEndpoint:
		switch c.event.RelationEvent {
		case hookenv.RelationChanged:
			return c.onStorageChanged(ctx)
		case hookenv.RelationBroken:
			return c.onStorageBroken(ctx)
		}
	case AzureServicePrincipalEndpoint:
		switch c.event.RelationEvent {
		case hookenv.RelationChanged, hookenv.RelationBroken:
			return c.onServicePrincipalChanged(ctx)
		}
	case BackupsEndpoint:
		if c.event.RelationEvent == hookenv.RelationChanged {
			return c.onBackupsChanged(ctx)
		}
	case MetricsEndpoint:
		switch c.event.RelationEvent {
		case hookenv.RelationCreated, hookenv.RelationJoined, hookenv.RelationChanged:
			return c.publishScrapeConfig(ctx)
		}
	}

	c.log.V(1).Info("Nothing to do for event")
	return nil
}

func (c *Charm) onInstall(ctx context.Context) error {
	if err := c.setStatus(ctx, hookenv.Maintenance(msgInstalling)); err != nil {
		return err
	}
	if err := c.ensureInstalled(ctx); err != nil {
		return err
	}
	return c.updateStatus(ctx)
}

// ensureInstalled runs the Velero install unless every core resource,
// including the node agent when enabled, is already present.
func (c *Charm) ensureInstalled(ctx context.Context) error {
	installed, err := c.velero.IsInstalled(ctx, c.config.UseNodeAgent)
	if err != nil {
		return err
	}
	if installed {
		return nil
	}

	err = c.velero.Install(ctx, c.config.VeleroImage, c.config.UseNodeAgent, c.config.DefaultVolumesToFsBackup)
	if err != nil {
		c.log.Error(err, "Failed to install Velero")
		return blocked("Failed to install Velero. %s", debugLogHint)
	}
	return nil
}

func (c *Charm) onConfigChanged(ctx context.Context) error {
	// Enabling the node agent after install needs its DaemonSet created.
	if err := c.ensureInstalled(ctx); err != nil {
		return err
	}

	rels, err := c.storageRelations(ctx)
	if err != nil {
		return err
	}
	if len(rels) == 1 {
		configured, err := c.velero.IsStorageConfigured(ctx)
		if err != nil {
			return err
		}
		if configured {
			if err := c.velero.UpdatePluginImage(ctx, c.config.pluginImage(rels[0].Endpoint)); err != nil {
				return err
			}
		}
	}

	if c.config.UseNodeAgent {
		err = c.velero.UpdateNodeAgentImage(ctx, c.config.VeleroImage)
	} else {
		err = c.velero.RemoveNodeAgent(ctx)
	}
	if err != nil {
		return err
	}

	if err := c.velero.UpdateDeploymentImage(ctx, c.config.VeleroImage); err != nil {
		return err
	}
	if err := c.velero.UpdateDeploymentFlags(ctx, c.config.DefaultVolumesToFsBackup); err != nil {
		return err
	}
	return c.updateStatus(ctx)
}

// updateStatus reconciles the storage configuration and reports the first
// problem found, or Active when Velero is ready.
func (c *Charm) updateStatus(ctx context.Context) error {
	if err := c.reconcileStorage(ctx); err != nil {
		return err
	}
	if err := c.velero.CheckDeployment(ctx); err != nil {
		return err
	}
	if c.config.UseNodeAgent {
		if err := c.velero.CheckNodeAgent(ctx); err != nil {
			return err
		}
	}
	if _, err := c.storageRelation(ctx); err != nil {
		return err
	}
	if err := c.velero.CheckStorageLocations(ctx); err != nil {
		return err
	}
	return c.setStatus(ctx, hookenv.Active(msgReady))
}

func (c *Charm) onStorageChanged(ctx context.Context) error {
	c.logf(ctx, hookenv.LevelInfo, "Storage relation %s changed, reconfiguring Velero storage", c.event.RelationID)
	if err := c.velero.RemoveStorageLocations(ctx); err != nil {
		return err
	}
	return c.updateStatus(ctx)
}

func (c *Charm) onStorageBroken(ctx context.Context) error {
	c.logf(ctx, hookenv.LevelInfo, "Storage relation %s removed, removing Velero storage locations", c.event.RelationID)
	if err := c.velero.RemoveStorageLocations(ctx); err != nil {
		return err
	}
	return c.updateStatus(ctx)
}

func (c *Charm) onServicePrincipalChanged(ctx context.Context) error {
	azure, err := c.relations(ctx, AzureEndpoint)
	if err != nil {
		return err
	}
	if len(azure) > 0 {
		c.logf(ctx, hookenv.LevelInfo, "Azure service principal changed, reconfiguring Velero storage")
		if err := c.velero.RemoveStorageLocations(ctx); err != nil {
			return err
		}
	}
	return c.updateStatus(ctx)
}

func (c *Charm) onBackupsChanged(ctx context.Context) error {
	targets, err := c.backupTargets(ctx)
	if err != nil {
		return err
	}
	for _, target := range targets {
		c.log.Info("Backup target available", "target", target.Name())
	}
	return nil
}

func (c *Charm) onUpgrade(ctx context.Context) error {
	if err := c.setStatus(ctx, hookenv.Maintenance(msgUpgrading)); err != nil {
		return err
	}
	if err := c.velero.Upgrade(ctx); err != nil {
		return err
	}
	return c.updateStatus(ctx)
}

func (c *Charm) onRemove(ctx context.Context) error {
	if err := c.setStatus(ctx, hookenv.Maintenance(msgRemoving)); err != nil {
		return err
	}
	c.velero.Remove(ctx)
	return nil
}
