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

// Package velero installs, configures and drives Velero inside the
// charm's Kubernetes namespace.
package velero

import (
	"reflect"
	"time"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"

	"github.com/canonical/velero-operator/internal/kube"
)

// Names of the resources Velero is made of.
const (
	DeploymentName             = "velero"
	NodeAgentName              = "node-agent"
	ServiceAccountName         = "velero"
	ClusterRoleBindingName     = "velero"
	MetricsServiceName         = "velero-metrics"
	MetricsPort                = 8085
	SecretName                 = "velero-cloud-credentials"
	SecretKey                  = "creds"
	BackupLocationName         = "default"
	VolumeSnapshotLocationName = "default"
	FieldManager               = "velero-operator"
)

// ComponentLabels are set on every resource the operator creates.
var ComponentLabels = map[string]string{"component": "velero"}

// Settings for waiting on backups and restores. Backups of large namespaces
// take a while so these are far more patient than the workload checks.
var DefaultOperationCheckSettings = kube.CheckSettings{
	Attempts:        360,
	Delay:           5 * time.Second,
	MinObservations: 1,
}

// Velero drives a Velero installation in a single namespace.
type Velero struct {
	client    client.Client
	executor  Executor
	namespace string
	log       logr.Logger

	// WorkloadChecks bounds the readiness checks of the server components.
	WorkloadChecks kube.CheckSettings
	// OperationChecks bounds the wait for backups and restores.
	OperationChecks kube.CheckSettings
}

// New creates a Velero bound to namespace.
func New(c client.Client, executor Executor, namespace string, log logr.Logger) *Velero {
	return &Velero{
		client:          c,
		executor:        executor,
		namespace:       namespace,
		log:             log,
		WorkloadChecks:  kube.DefaultCheckSettings,
		OperationChecks: DefaultOperationCheckSettings,
	}
}

// Namespace returns the namespace Velero is installed into.
func (v *Velero) Namespace() string {
	return v.namespace
}

// clusterRoleBindingName mirrors the name "velero install" picks: the
// binding is suffixed with the namespace unless it is "velero".
func (v *Velero) clusterRoleBindingName() string {
	if v.namespace == "velero" {
		return ClusterRoleBindingName
	}
	return ClusterRoleBindingName + "-" + v.namespace
}

func (v *Velero) objectMeta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: name, Namespace: v.namespace}
}

// coreResources are created by "velero install".
func (v *Velero) coreResources(useNodeAgent bool) []client.Object {
	objs := []client.Object{
		&appsv1.Deployment{ObjectMeta: v.objectMeta(DeploymentName)},
	}
	if useNodeAgent {
		objs = append(objs, &appsv1.DaemonSet{ObjectMeta: v.objectMeta(NodeAgentName)})
	}
	return append(objs,
		&corev1.ServiceAccount{ObjectMeta: v.objectMeta(ServiceAccountName)},
		&corev1.Service{ObjectMeta: v.objectMeta(MetricsServiceName)},
		&rbacv1.ClusterRoleBinding{ObjectMeta: metav1.ObjectMeta{Name: v.clusterRoleBindingName()}},
	)
}

// storageResources are created when a storage relation is configured.
func (v *Velero) storageResources() []client.Object {
	return []client.Object{
		&corev1.Secret{ObjectMeta: v.objectMeta(SecretName)},
		&velerov1api.BackupStorageLocation{ObjectMeta: v.objectMeta(BackupLocationName)},
		&velerov1api.VolumeSnapshotLocation{ObjectMeta: v.objectMeta(VolumeSnapshotLocationName)},
	}
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, val := range in {
		out[k] = val
	}
	return out
}

// kindOf returns the Go type name of obj, which matches its Kubernetes kind.
func kindOf(obj client.Object) string {
	return reflect.TypeOf(obj).Elem().Name()
}
