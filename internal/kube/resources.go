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

// Package kube holds small helpers over the controller-runtime client.
package kube

import (
	"context"
	"errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ResourceExists reports whether obj (identified by its name and namespace)
// exists in the cluster. The object is filled in when found.
func ResourceExists(ctx context.Context, c client.Client, obj client.Object) (bool, error) {
	err := c.Get(ctx, client.ObjectKeyFromObject(obj), obj)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveResource deletes obj, ignoring not found errors.
func RemoveResource(ctx context.Context, c client.Client, obj client.Object) error {
	return client.IgnoreNotFound(c.Delete(ctx, obj))
}

// CreateOrIgnore creates obj, ignoring already exists errors.
func CreateOrIgnore(ctx context.Context, c client.Client, obj client.Object) error {
	if err := c.Create(ctx, obj); err != nil && !apierrors.IsAlreadyExists(err) {
		return err
	}
	return nil
}

// PatchOrIgnore applies a raw patch to obj, ignoring not found errors.
func PatchOrIgnore(ctx context.Context, c client.Client, obj client.Object, patch client.Patch) error {
	return client.IgnoreNotFound(c.Patch(ctx, obj, patch))
}

// IsForbidden reports whether err is an API 403.
func IsForbidden(err error) bool {
	return apierrors.IsForbidden(err)
}

// IsAPIError reports whether err came back from the API server.
func IsAPIError(err error) bool {
	var status apierrors.APIStatus
	return errors.As(err, &status)
}

// NewScheme is a shorthand for building a scheme from registration funcs.
func NewScheme(adders ...func(*runtime.Scheme) error) (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	for _, add := range adders {
		if err := add(scheme); err != nil {
			return nil, err
		}
	}
	return scheme, nil
}
