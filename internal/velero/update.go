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
	"encoding/json"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/canonical/velero-operator/internal/kube"
)

// recreateStrategy swaps the rolling update for Recreate: two Velero
// servers must never run side by side.
var recreateStrategy = map[string]any{"type": "Recreate", "rollingUpdate": nil}

func containerPatch(container map[string]any, strategy map[string]any) (client.Patch, error) {
	spec := map[string]any{
		"template": map[string]any{
			"spec": map[string]any{
				"containers": []any{container},
			},
		},
	}
	if strategy != nil {
		spec["strategy"] = strategy
	}
	data, err := json.Marshal(map[string]any{"spec": spec})
	if err != nil {
		return nil, err
	}
	return client.RawPatch(types.StrategicMergePatchType, data), nil
}

// RemoveNodeAgent deletes the node agent DaemonSet.
func (v *Velero) RemoveNodeAgent(ctx context.Context) error {
	v.log.Info("Removing the Velero NodeAgent", "namespace", v.namespace)
	ds := &appsv1.DaemonSet{ObjectMeta: v.objectMeta(NodeAgentName)}
	if err := kube.RemoveResource(ctx, v.client, ds); err != nil {
		return newError(err, "Failed to remove Velero NodeAgent")
	}
	return nil
}

// UpdateDeploymentImage sets the image of the velero server container.
// A missing deployment is not an error.
func (v *Velero) UpdateDeploymentImage(ctx context.Context, image string) error {
	patch, err := containerPatch(map[string]any{"name": DeploymentName, "image": image}, recreateStrategy)
	if err == nil {
		deployment := &appsv1.Deployment{ObjectMeta: v.objectMeta(DeploymentName)}
		err = kube.PatchOrIgnore(ctx, v.client, deployment, patch)
	}
	if err != nil {
		v.log.Error(err, "Failed to update Velero Deployment image")
		return newError(err, "Failed to update Velero Deployment image to '%s'", image)
	}
	return nil
}

// UpdateNodeAgentImage sets the image of the node agent container.
// A missing DaemonSet is not an error.
func (v *Velero) UpdateNodeAgentImage(ctx context.Context, image string) error {
	patch, err := containerPatch(map[string]any{"name": NodeAgentName, "image": image}, nil)
	if err == nil {
		ds := &appsv1.DaemonSet{ObjectMeta: v.objectMeta(NodeAgentName)}
		err = kube.PatchOrIgnore(ctx, v.client, ds, patch)
	}
	if err != nil {
		v.log.Error(err, "Failed to update Velero NodeAgent image")
		return newError(err, "Failed to update Velero NodeAgent image to '%s'", image)
	}
	return nil
}

// UpdatePluginImage replaces the image of the first init container of the
// deployment, which is where "velero plugin add" puts the provider plugin.
func (v *Velero) UpdatePluginImage(ctx context.Context, image string) error {
	ops := []map[string]any{{
		"op":    "replace",
		"path":  "/spec/template/spec/initContainers/0/image",
		"value": image,
	}}
	data, err := json.Marshal(ops)
	if err == nil {
		deployment := &appsv1.Deployment{ObjectMeta: v.objectMeta(DeploymentName)}
		err = kube.PatchOrIgnore(ctx, v.client, deployment, client.RawPatch(types.JSONPatchType, data))
	}
	if err != nil {
		v.log.Error(err, "Failed to update Velero plugin image")
		return newError(err, "Failed to update Velero plugin image to '%s'", image)
	}
	return nil
}

// UpdateDeploymentFlags rewrites the server flags that follow charm config.
// A missing deployment is not an error.
func (v *Velero) UpdateDeploymentFlags(ctx context.Context, defaultVolumesToFsBackup bool) error {
	flags := []serverFlag{{name: "default-volumes-to-fs-backup", value: defaultVolumesToFsBackup}}

	deployment := &appsv1.Deployment{ObjectMeta: v.objectMeta(DeploymentName)}
	found, err := kube.ResourceExists(ctx, v.client, deployment)
	if err != nil {
		v.log.Error(err, "Failed to update Velero Deployment arguments")
		return newError(err, "Failed to update Velero Deployment arguments")
	}
	if !found {
		return nil
	}
	if len(deployment.Spec.Template.Spec.Containers) == 0 {
		return newError(nil, "Velero Deployment has no valid spec")
	}

	var current []string
	for _, c := range deployment.Spec.Template.Spec.Containers {
		if c.Name == DeploymentName {
			current = c.Args
		}
	}
	if len(current) == 0 {
		return newError(nil, "Failed to get Velero Deployment container arguments")
	}

	args := make([]string, 0, len(current)+len(flags))
	for _, arg := range current {
		if !hasFlag(arg, flags) {
			args = append(args, arg)
		}
	}
	for _, f := range flags {
		args = append(args, fmt.Sprintf("--%s=%t", f.name, f.value))
	}

	patch, err := containerPatch(map[string]any{"name": DeploymentName, "args": args}, recreateStrategy)
	if err == nil {
		err = kube.PatchOrIgnore(ctx, v.client, deployment, patch)
	}
	if err != nil {
		v.log.Error(err, "Failed to update Velero Deployment arguments")
		return newError(err, "Failed to update Velero Deployment arguments")
	}
	return nil
}

type serverFlag struct {
	name  string
	value bool
}

func hasFlag(arg string, flags []serverFlag) bool {
	for _, f := range flags {
		if strings.HasPrefix(arg, "--"+f.name+"=") {
			return true
		}
	}
	return false
}
