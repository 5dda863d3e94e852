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

	"github.com/canonical/velero-operator/internal/hookenv"
	"github.com/canonical/velero-operator/internal/kube"
	"github.com/canonical/velero-operator/internal/storage"
	"github.com/canonical/velero-operator/internal/velero"
)

const debugLogHint = "See juju debug-log for details."

// Status messages.
const (
	msgReady      = "Unit is Ready"
	msgInstalling = "Deploying Velero server on the cluster"
	msgUpgrading  = "Upgrading Velero"
	msgRemoving   = "Removing Velero from the cluster"
	msgTrust      = "The charm must be deployed with '--trust' flag enabled, run 'juju trust %s --scope=cluster'"
)

// accessError is a failed Kubernetes permission check.
type accessError struct {
	err error
}

func (e *accessError) Error() string { return e.err.Error() }
func (e *accessError) Unwrap() error { return e.err }

// blockedError carries a status message shown to the operator as is.
type blockedError struct {
	msg string
}

func (e *blockedError) Error() string { return e.msg }

func blocked(format string, args ...any) error {
	return &blockedError{msg: fmt.Sprintf(format, args...)}
}

// waitingError is a condition expected to resolve without intervention.
type waitingError struct {
	msg string
}

func (e *waitingError) Error() string { return e.msg }

// statusFor maps the error a hook handler returned to the unit status.
func (c *Charm) statusFor(err error) hookenv.Status {
	var (
		accessErr     *accessError
		blockedErr    *blockedError
		waitingErr    *waitingError
		configErr     *ConfigError
		validationErr *storage.ValidationError
		statusErr     *velero.StatusError
		veleroErr     *velero.Error
	)
	switch {
	case errors.As(err, &accessErr):
		if kube.IsForbidden(accessErr.err) {
			return hookenv.Blocked(fmt.Sprintf(msgTrust, c.appName()))
		}
		return hookenv.Blocked("Failed to access K8s API. " + debugLogHint)
	case errors.As(err, &blockedErr):
		return hookenv.Blocked(blockedErr.msg)
	case errors.As(err, &waitingErr):
		return hookenv.Waiting(waitingErr.msg)
	case errors.As(err, &configErr):
		return hookenv.Blocked(configErr.Error())
	case errors.As(err, &validationErr):
		return hookenv.Blocked("Invalid configuration: " + validationErr.Error())
	case errors.As(err, &statusErr):
		return hookenv.Blocked(statusErr.Msg)
	case errors.As(err, &veleroErr):
		return hookenv.Blocked(fmt.Sprintf("%s. %s", veleroErr.Msg, debugLogHint))
	case kube.IsForbidden(err):
		return hookenv.Blocked(fmt.Sprintf(msgTrust, c.appName()))
	case kube.IsAPIError(err):
		return hookenv.Blocked("Failed to access K8s API. " + debugLogHint)
	}
	return hookenv.Blocked(fmt.Sprintf("%s. %s", err.Error(), debugLogHint))
}

// setStatus reports status to Juju and mirrors it into the debug-log.
func (c *Charm) setStatus(ctx context.Context, status hookenv.Status) error {
	if status.Kind == hookenv.StatusBlocked {
		c.log.Info("Unit blocked", "message", status.Message)
	} else {
		c.log.V(1).Info("Setting status", "status", status.Kind, "message", status.Message)
	}
	if err := c.hook.Log(ctx, status.LogLevel(), status.Message); err != nil {
		return err
	}
	return c.hook.SetStatus(ctx, status)
}

// logf writes a message to the debug-log.
func (c *Charm) logf(ctx context.Context, level hookenv.LogLevel, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err := c.hook.Log(ctx, level, msg); err != nil {
		c.log.Error(err, "Failed to write to juju-log", "message", msg)
	}
}
