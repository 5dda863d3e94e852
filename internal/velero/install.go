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
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/canonical/velero-operator/internal/kube"
)

// Install runs "velero install" without any storage location and creates
// the metrics service.
func (v *Velero) Install(ctx context.Context, image string, useNodeAgent, defaultVolumesToFsBackup bool) error {
	v.log.Info("Installing Velero",
		"image", image,
		"namespace", v.namespace,
		"nodeAgent", useNodeAgent,
		"defaultVolumesToFsBackup", defaultVolumesToFsBackup)

	cmd := NewCommand("install").
		WithFlag("image", image).
		WithNamespace(v.namespace).
		WithSwitch("no-default-backup-location").
		WithSwitch("no-secret").
		WithBool("use-volume-snapshots", false).
		WithBool("use-node-agent", useNodeAgent).
		WithBool("default-volumes-to-fs-backup", defaultVolumesToFsBackup)
	if _, err := v.run(ctx, cmd); err != nil {
		return newError(err, "Failed to install Velero on the cluster")
	}

	return v.configureMetricsService(ctx)
}

func (v *Velero) configureMetricsService(ctx context.Context) error {
	svc := &corev1.Service{
		ObjectMeta: v.objectMeta(MetricsServiceName),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{"deploy": DeploymentName},
			Ports: []corev1.ServicePort{{
				Name:       "metrics",
				Port:       MetricsPort,
				TargetPort: intstr.FromInt32(MetricsPort),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
	svc.Labels = copyLabels(ComponentLabels)

	if err := kube.CreateOrIgnore(ctx, v.client, svc); err != nil {
		return newError(err, "Failed to create ClusterIP service for the Velero Deployment")
	}
	return nil
}

// IsInstalled reports whether all core Velero resources exist. The node
// agent is only required when useNodeAgent is set.
func (v *Velero) IsInstalled(ctx context.Context, useNodeAgent bool) (bool, error) {
	v.log.V(1).Info("Checking if Velero is installed")
	return v.allExist(ctx, v.coreResources(useNodeAgent))
}

func (v *Velero) allExist(ctx context.Context, objs []client.Object) (bool, error) {
	for _, obj := range objs {
		found, err := kube.ResourceExists(ctx, v.client, obj)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// CRDs returns the custom resource definitions shipped with the velero binary.
func (v *Velero) CRDs(ctx context.Context) ([]*apiextensionsv1.CustomResourceDefinition, error) {
	out, err := v.run(ctx, NewCommand("install").
		WithSwitch("crds-only").
		WithSwitch("dry-run").
		WithOutput("yaml"))
	if err != nil {
		return nil, newError(err, "Failed to load Velero CRDs from dry-run install")
	}

	crds, err := decodeCRDs(strings.NewReader(out))
	if err != nil {
		return nil, newError(err, "Failed to load Velero CRDs from dry-run install")
	}
	return crds, nil
}

// decodeCRDs reads a YAML stream of documents, each either a single object
// or a v1 List, and keeps the CustomResourceDefinitions.
func decodeCRDs(r io.Reader) ([]*apiextensionsv1.CustomResourceDefinition, error) {
	decoder := utilyaml.NewYAMLOrJSONDecoder(r, 4096)
	var crds []*apiextensionsv1.CustomResourceDefinition

	for {
		obj := &unstructured.Unstructured{}
		if err := decoder.Decode(&obj.Object); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}
		if len(obj.Object) == 0 {
			continue
		}

		items := []unstructured.Unstructured{*obj}
		if obj.IsList() {
			list, err := obj.ToList()
			if err != nil {
				return nil, fmt.Errorf("failed to decode list: %w", err)
			}
			items = list.Items
		}

		for i := range items {
			if items[i].GetKind() != "CustomResourceDefinition" {
				continue
			}
			crd := &apiextensionsv1.CustomResourceDefinition{}
			if err := runtime.DefaultUnstructuredConverter.FromUnstructured(items[i].Object, crd); err != nil {
				return nil, fmt.Errorf("failed to convert %s: %w", items[i].GetName(), err)
			}
			crds = append(crds, crd)
		}
	}
	return crds, nil
}

// Upgrade brings the Velero CRDs in line with the bundled binary.
func (v *Velero) Upgrade(ctx context.Context) error {
	v.log.Info("Upgrading Velero CRDs")
	crds, err := v.CRDs(ctx)
	if err != nil {
		return err
	}

	for _, desired := range crds {
		crd := &apiextensionsv1.CustomResourceDefinition{}
		crd.Name = desired.Name
		_, err := controllerutil.CreateOrUpdate(ctx, v.client, crd, func() error {
			crd.Labels = desired.Labels
			crd.Annotations = desired.Annotations
			crd.Spec = desired.Spec
			return nil
		})
		if err != nil {
			return newError(err, "Failed to upgrade Velero CRDs")
		}
	}
	return nil
}

// Remove deletes everything the operator and "velero install" created.
// Failures are logged and skipped so that as much as possible is removed.
func (v *Velero) Remove(ctx context.Context) {
	objs := v.storageResources()

	crds, err := v.CRDs(ctx)
	if err != nil {
		v.log.Error(err, "Skipping Velero CRDs removal")
	}
	for i := len(crds) - 1; i >= 0; i-- {
		objs = append(objs, &apiextensionsv1.CustomResourceDefinition{ObjectMeta: crds[i].ObjectMeta})
	}
	objs = append(objs, v.coreResources(true)...)

	for _, obj := range objs {
		v.log.Info("Removing Velero resource", "kind", kindOf(obj), "name", obj.GetName())
		if err := kube.RemoveResource(ctx, v.client, obj); err != nil {
			v.log.Error(err, "Failed to remove Velero resource", "name", obj.GetName())
		}
	}
}
