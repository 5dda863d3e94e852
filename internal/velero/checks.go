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

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"

	"github.com/canonical/velero-operator/internal/conditions"
	"github.com/canonical/velero-operator/internal/kube"
)

func notReady(component, reason string) error {
	return &StatusError{Msg: fmt.Sprintf("Velero %s is not ready: %s", component, reason)}
}

// CheckDeployment waits for the velero Deployment to become Available.
// When it does not, the error carries the most telling container reason
// of its pods, e.g. ImagePullBackOff.
func (v *Velero) CheckDeployment(ctx context.Context) error {
	v.log.V(1).Info("Checking the Velero Deployment readiness")
	key := client.ObjectKey{Namespace: v.namespace, Name: DeploymentName}

	return kube.RetryCheck(ctx, v.WorkloadChecks, func(ctx context.Context) error {
		deployment := &appsv1.Deployment{}
		if err := v.client.Get(ctx, key, deployment); err != nil {
			return err
		}

		cond, reason := conditions.DeploymentAvailability(deployment)
		if cond == nil {
			return notReady("Deployment", reason)
		}
		if conditions.IsConditionTrue(cond) {
			return nil
		}

		message := cond.Message
		pods, err := v.deploymentPods(ctx, deployment)
		if err != nil {
			return err
		}
		if podReason := conditions.PodFailureReason(pods); podReason != "" {
			message = podReason
		}
		if message == "" {
			message = conditions.ReasonNotAvailable
		}
		return notReady("Deployment", message)
	})
}

func (v *Velero) deploymentPods(ctx context.Context, deployment *appsv1.Deployment) ([]corev1.Pod, error) {
	if deployment.Spec.Selector == nil || len(deployment.Spec.Selector.MatchLabels) == 0 {
		return nil, nil
	}
	pods := &corev1.PodList{}
	err := v.client.List(ctx, pods,
		client.InNamespace(v.namespace),
		client.MatchingLabels(deployment.Spec.Selector.MatchLabels))
	if err != nil {
		return nil, err
	}
	return pods.Items, nil
}

// CheckNodeAgent waits until every node agent pod is available.
func (v *Velero) CheckNodeAgent(ctx context.Context) error {
	v.log.V(1).Info("Checking the Velero NodeAgent readiness")
	key := client.ObjectKey{Namespace: v.namespace, Name: NodeAgentName}

	return kube.RetryCheck(ctx, v.WorkloadChecks, func(ctx context.Context) error {
		ds := &appsv1.DaemonSet{}
		if err := v.client.Get(ctx, key, ds); err != nil {
			return err
		}
		if ok, reason := conditions.DaemonSetAvailable(ds); !ok {
			return notReady("NodeAgent", reason)
		}
		return nil
	})
}

// CheckStorageLocations waits for the backup storage location to become
// Available and then checks that the volume snapshot location exists.
func (v *Velero) CheckStorageLocations(ctx context.Context) error {
	v.log.V(1).Info("Checking the Velero BackupStorageLocation readiness")
	bslKey := client.ObjectKey{Namespace: v.namespace, Name: BackupLocationName}

	err := kube.RetryCheck(ctx, v.WorkloadChecks, func(ctx context.Context) error {
		bsl := &velerov1api.BackupStorageLocation{}
		if err := v.client.Get(ctx, bslKey, bsl); err != nil {
			return err
		}
		switch bsl.Status.Phase {
		case "":
			return notReady("Storage location", "BackupStorageLocation has no status")
		case velerov1api.BackupStorageLocationPhaseAvailable:
			return nil
		default:
			return notReady("Storage location", "BackupStorageLocation is unavailable")
		}
	})
	if err != nil {
		return err
	}

	v.log.V(1).Info("Checking the Velero VolumeSnapshotLocation readiness")
	vsl := &velerov1api.VolumeSnapshotLocation{}
	return v.client.Get(ctx, client.ObjectKey{Namespace: v.namespace, Name: VolumeSnapshotLocationName}, vsl)
}
