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
	"slices"
	"strings"
	"time"

	"github.com/juju/names/v5"
	"github.com/kballard/go-shellquote"
	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"

	v0 "github.com/canonical/velero-operator/api/v0"
	"github.com/canonical/velero-operator/internal/hookenv"
	"github.com/canonical/velero-operator/internal/velero"
)

// Labels set on the Backups and Schedules created by actions.
const (
	appLabel      = "app"
	endpointLabel = "endpoint"
)

const notAvailable = "N/A"

// allowedCLICommands are the velero subcommands run-cli accepts.
var allowedCLICommands = []string{"backup", "restore", "schedule", "describe", "get", "version"}

// actionError is an action failure reported to the caller as is.
type actionError struct {
	msg string
}

func (e *actionError) Error() string { return e.msg }

func actionFailed(format string, args ...any) error {
	return &actionError{msg: fmt.Sprintf(format, args...)}
}

type actionHandler func(ctx context.Context) (map[string]any, error)

func (c *Charm) actionHandlers() map[string]actionHandler {
	return map[string]actionHandler{
		"run-cli":         c.runCLI,
		"create-backup":   c.createBackup,
		"list-backups":    c.listBackups,
		"restore":         c.restore,
		"create-schedule": c.createSchedule,
		"list-schedules":  c.listSchedules,
	}
}

func (c *Charm) runAction(ctx context.Context) error {
	handler, ok := c.actionHandlers()[c.event.Name]
	if !ok {
		return c.hook.ActionFail(ctx, fmt.Sprintf("Unknown action '%s'", c.event.Name))
	}
	c.log.Info("Running action")

	results, err := c.checkActionPreconditions(ctx)
	if err == nil {
		results, err = handler(ctx)
	}
	if err != nil {
		var toolErr *hookenv.ToolError
		if errors.As(err, &toolErr) {
			return err
		}
		msg := c.actionMessage(err)
		c.log.Error(err, "Action failed")
		c.logf(ctx, hookenv.LevelError, "Action %s failed: %s", c.event.Name, msg)
		return c.hook.ActionFail(ctx, msg)
	}
	return c.hook.ActionSet(ctx, results)
}

// actionMessage turns a handler error into the action failure message.
func (c *Charm) actionMessage(err error) string {
	var (
		actionErr *actionError
		cliErr    *velero.CLIError
		accessErr *accessError
	)
	switch {
	case errors.As(err, &actionErr):
		return actionErr.msg
	case errors.As(err, &cliErr):
		msg := cliErr.Error()
		if stderr := strings.TrimSpace(cliErr.Stderr); stderr != "" {
			msg += " " + stderr
		}
		return msg
	case errors.As(err, &accessErr):
		return c.statusFor(err).Message
	}
	return err.Error()
}

// checkActionPreconditions requires a working cluster connection and a
// configured storage location. It never returns results.
func (c *Charm) checkActionPreconditions(ctx context.Context) (map[string]any, error) {
	if err := c.checkAccess(ctx); err != nil {
		return nil, err
	}
	if _, err := c.storageRelation(ctx); err != nil {
		return nil, err
	}
	configured, err := c.velero.IsStorageConfigured(ctx)
	if err != nil {
		return nil, err
	}
	if !configured {
		return nil, actionFailed("Velero storage is not configured yet, check the unit status")
	}
	return nil, nil
}

type runCLIParams struct {
	Command string `json:"command"`
}

func (c *Charm) runCLI(ctx context.Context) (map[string]any, error) {
	var params runCLIParams
	if err := c.hook.ActionParams(ctx, &params); err != nil {
		return nil, err
	}

	args, err := shellquote.Split(params.Command)
	if err != nil {
		return nil, actionFailed("Invalid command '%s': %v", params.Command, err)
	}
	if len(args) == 0 {
		return nil, actionFailed("Command cannot be empty")
	}
	if !slices.Contains(allowedCLICommands, args[0]) {
		return nil, actionFailed("Invalid command '%s'. Allowed commands: %s", args[0], strings.Join(allowedCLICommands, ", "))
	}

	c.logf(ctx, hookenv.LevelInfo, "Running 'velero %s'", strings.Join(args, " "))
	out, err := c.velero.RunCLICommand(ctx, args)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "output": out}, nil
}

type createBackupParams struct {
	Target string `json:"target"`
	TTL    string `json:"ttl"`
}

// parseTarget validates a target in "app:endpoint" form.
func parseTarget(target string) (app, endpoint string, err error) {
	app, endpoint, ok := strings.Cut(target, ":")
	if !ok || endpoint == "" || !names.IsValidApplication(app) {
		return "", "", actionFailed("Invalid target '%s', expected 'app:endpoint'", target)
	}
	return app, endpoint, nil
}

// resolveTarget returns the related backup target, applying the ttl override.
func (c *Charm) resolveTarget(ctx context.Context, name, ttl string) (*v0.BackupTarget, error) {
	if _, _, err := parseTarget(name); err != nil {
		return nil, err
	}
	target, err := c.backupTarget(ctx, name)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, actionFailed("No backup target '%s' found in %s relations", name, BackupsEndpoint)
	}
	if ttl != "" {
		if !v0.ValidTTL(ttl) {
			return nil, actionFailed("Invalid ttl '%s', expected a duration such as 24h or 10h10m10s", ttl)
		}
		target.Spec.TTL = &ttl
	}
	return target, nil
}

func targetLabels(target *v0.BackupTarget) map[string]string {
	return map[string]string{appLabel: target.App, endpointLabel: target.RelationName}
}

func targetPrefix(target *v0.BackupTarget) string {
	return fmt.Sprintf("%s-%s-", target.App, target.RelationName)
}

func (c *Charm) createBackup(ctx context.Context) (map[string]any, error) {
	var params createBackupParams
	if err := c.hook.ActionParams(ctx, &params); err != nil {
		return nil, err
	}
	target, err := c.resolveTarget(ctx, params.Target, params.TTL)
	if err != nil {
		return nil, err
	}

	if err := c.hook.ActionLog(ctx, fmt.Sprintf("Creating backup for %s", target.Name())); err != nil {
		return nil, err
	}
	start := c.now()
	name, err := c.velero.CreateBackup(ctx, targetPrefix(target), target.Spec, c.config.DefaultVolumesToFsBackup, targetLabels(target), nil)
	duration := c.now().Sub(start)

	notifyCfg := c.config.Notifications()
	ns := c.velero.Namespace()
	if err != nil {
		if nerr := c.notifier.NotifyBackupFailure(ctx, notifyCfg, target.Name(), ns, name, err.Error(), start, duration); nerr != nil {
			c.log.Error(nerr, "Failed to send backup failure notification")
		}
		return nil, err
	}
	if nerr := c.notifier.NotifyBackupSuccess(ctx, notifyCfg, target.Name(), ns, name, start, duration); nerr != nil {
		c.log.Error(nerr, "Failed to send backup notification")
	}
	return map[string]any{"status": "success", "backup-name": name}, nil
}

type listParams struct {
	App      string `json:"app"`
	Endpoint string `json:"endpoint"`
}

func (c *Charm) listLabels(ctx context.Context) (map[string]string, error) {
	var params listParams
	if err := c.hook.ActionParams(ctx, &params); err != nil {
		return nil, err
	}
	if params.Endpoint != "" && params.App == "" {
		return nil, actionFailed("The 'endpoint' parameter requires 'app'")
	}
	labels := map[string]string{}
	if params.App != "" {
		labels[appLabel] = params.App
	}
	if params.Endpoint != "" {
		labels[endpointLabel] = params.Endpoint
	}
	return labels, nil
}

func labelOrNA(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return notAvailable
}

func timeOrNA(t *time.Time) string {
	if t == nil {
		return notAvailable
	}
	return t.UTC().Format(time.RFC3339)
}

func (c *Charm) listBackups(ctx context.Context) (map[string]any, error) {
	labels, err := c.listLabels(ctx)
	if err != nil {
		return nil, err
	}
	backups, err := c.velero.ListBackups(ctx, labels)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	for _, b := range backups {
		out[b.UID] = map[string]any{
			"name":                 b.Name,
			"app":                  labelOrNA(b.Labels, appLabel),
			"endpoint":             labelOrNA(b.Labels, endpointLabel),
			"phase":                b.Phase,
			"start-timestamp":      timeOrNA(&b.StartTimestamp),
			"completion-timestamp": timeOrNA(b.CompletionTimestamp),
		}
	}
	if len(out) == 0 {
		return map[string]any{"status": "success", "message": "No backups found"}, nil
	}
	return map[string]any{"status": "success", "backups": out}, nil
}

type restoreParams struct {
	BackupUID              string `json:"backup-uid"`
	ExistingResourcePolicy string `json:"existing-resource-policy"`
}

func (c *Charm) restore(ctx context.Context) (map[string]any, error) {
	var params restoreParams
	if err := c.hook.ActionParams(ctx, &params); err != nil {
		return nil, err
	}
	if params.BackupUID == "" {
		return nil, actionFailed("The 'backup-uid' parameter is required")
	}

	var policy velerov1api.PolicyType
	switch params.ExistingResourcePolicy {
	case "", string(velerov1api.PolicyTypeNone):
		policy = velerov1api.PolicyTypeNone
	case string(velerov1api.PolicyTypeUpdate):
		policy = velerov1api.PolicyTypeUpdate
	default:
		return nil, actionFailed("Invalid existing-resource-policy '%s', expected 'none' or 'update'", params.ExistingResourcePolicy)
	}

	if err := c.hook.ActionLog(ctx, fmt.Sprintf("Restoring backup %s", params.BackupUID)); err != nil {
		return nil, err
	}
	start := c.now()
	name, err := c.velero.CreateRestore(ctx, params.BackupUID, policy, map[string]string{"backup-uid": params.BackupUID}, nil)
	duration := c.now().Sub(start)

	notifyCfg := c.config.Notifications()
	ns := c.velero.Namespace()
	if err != nil {
		if nerr := c.notifier.NotifyRestoreFailure(ctx, notifyCfg, params.BackupUID, ns, name, err.Error(), start, duration); nerr != nil {
			c.log.Error(nerr, "Failed to send restore failure notification")
		}
		return nil, err
	}
	if nerr := c.notifier.NotifyRestoreSuccess(ctx, notifyCfg, params.BackupUID, ns, name, start, duration); nerr != nil {
		c.log.Error(nerr, "Failed to send restore notification")
	}
	return map[string]any{"status": "success", "restore-name": name}, nil
}

type createScheduleParams struct {
	Target   string `json:"target"`
	Schedule string `json:"schedule"`
	TTL      string `json:"ttl"`
}

func (c *Charm) createSchedule(ctx context.Context) (map[string]any, error) {
	var params createScheduleParams
	if err := c.hook.ActionParams(ctx, &params); err != nil {
		return nil, err
	}
	if _, err := velero.ParseSchedule(params.Schedule); err != nil {
		return nil, actionFailed("Invalid schedule '%s': %v", params.Schedule, err)
	}
	target, err := c.resolveTarget(ctx, params.Target, params.TTL)
	if err != nil {
		return nil, err
	}

	name, next, err := c.velero.CreateSchedule(ctx, targetPrefix(target), params.Schedule, target.Spec,
		c.config.DefaultVolumesToFsBackup, targetLabels(target), c.now())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":        "success",
		"schedule-name": name,
		"next-run":      next.UTC().Format(time.RFC3339),
	}, nil
}

func (c *Charm) listSchedules(ctx context.Context) (map[string]any, error) {
	labels, err := c.listLabels(ctx)
	if err != nil {
		return nil, err
	}
	schedules, err := c.velero.ListSchedules(ctx, labels)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	for _, s := range schedules {
		out[s.Name] = map[string]any{
			"schedule":    s.Schedule,
			"app":         labelOrNA(s.Labels, appLabel),
			"endpoint":    labelOrNA(s.Labels, endpointLabel),
			"phase":       s.Phase,
			"last-backup": timeOrNA(s.LastBackup),
		}
	}
	if len(out) == 0 {
		return map[string]any{"status": "success", "message": "No schedules found"}, nil
	}
	return map[string]any{"status": "success", "schedules": out}, nil
}
