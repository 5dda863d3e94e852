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

// Package conditions inspects the readiness of Kubernetes workloads.
package conditions

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// Reasons reported when a Deployment is not available.
const (
	ReasonNoStatus     = "No status"
	ReasonNoConditions = "No conditions"
	ReasonNoAvailable  = "No Available condition"
	ReasonNotAvailable = "Not Available"
	ReasonPodsNotAllUp = "Not all pods are available"
)

// GetDeploymentCondition returns the condition with the given type, or nil if not found.
func GetDeploymentCondition(conditions []appsv1.DeploymentCondition, condType appsv1.DeploymentConditionType) *appsv1.DeploymentCondition {
	for i := range conditions {
		if conditions[i].Type == condType {
			return &conditions[i]
		}
	}
	return nil
}

// DeploymentAvailability returns the Available condition of d. When the
// deployment has not reported it yet, the second value explains why.
func DeploymentAvailability(d *appsv1.Deployment) (*appsv1.DeploymentCondition, string) {
	if d == nil || isEmptyDeploymentStatus(d.Status) {
		return nil, ReasonNoStatus
	}
	if len(d.Status.Conditions) == 0 {
		return nil, ReasonNoConditions
	}
	cond := GetDeploymentCondition(d.Status.Conditions, appsv1.DeploymentAvailable)
	if cond == nil {
		return nil, ReasonNoAvailable
	}
	return cond, ""
}

func isEmptyDeploymentStatus(s appsv1.DeploymentStatus) bool {
	return s.ObservedGeneration == 0 && s.Replicas == 0 && len(s.Conditions) == 0
}

// IsConditionTrue reports whether cond is set and True.
func IsConditionTrue(cond *appsv1.DeploymentCondition) bool {
	return cond != nil && cond.Status == corev1.ConditionTrue
}

// ContainerStatuses returns the regular and init container statuses of pod.
func ContainerStatuses(pod *corev1.Pod) []corev1.ContainerStatus {
	statuses := make([]corev1.ContainerStatus, 0,
		len(pod.Status.ContainerStatuses)+len(pod.Status.InitContainerStatuses))
	statuses = append(statuses, pod.Status.ContainerStatuses...)
	return append(statuses, pod.Status.InitContainerStatuses...)
}

// PodFailureReason returns the last waiting or terminated reason found in
// the containers of pods that are not ready, e.g. "ImagePullBackOff" or
// "CrashLoopBackOff". Ready containers, such as init containers that ran to
// completion, never contribute a reason.
func PodFailureReason(pods []corev1.Pod) string {
	reason := ""
	for i := range pods {
		for _, status := range ContainerStatuses(&pods[i]) {
			if status.Ready {
				continue
			}
			switch {
			case status.State.Waiting != nil && status.State.Waiting.Reason != "":
				reason = status.State.Waiting.Reason
			case status.State.Terminated != nil && status.State.Terminated.Reason != "":
				reason = status.State.Terminated.Reason
			}
		}
	}
	return reason
}

// DaemonSetAvailable reports whether every scheduled pod of ds is available.
// The reason is empty when it is.
func DaemonSetAvailable(ds *appsv1.DaemonSet) (bool, string) {
	if ds == nil || (ds.Status.ObservedGeneration == 0 && ds.Status.DesiredNumberScheduled == 0) {
		return false, ReasonNoStatus
	}
	if ds.Status.NumberAvailable != ds.Status.DesiredNumberScheduled {
		return false, ReasonPodsNotAllUp
	}
	return true, ""
}
