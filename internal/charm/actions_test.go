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
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	velerov1api "github.com/vmware-tanzu/velero/pkg/apis/velero/v1"

	"github.com/canonical/velero-operator/internal/velero"
)

var _ = Describe("Charm actions", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
		env.velero.installed = true
		env.velero.storageConfigured = true
		env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
		env.hook.relate(BackupsEndpoint, "velero-backups:5", "kubeflow", map[string]string{
			"app":           "kubeflow",
			"relation_name": "profiles-backup",
			"spec":          `{"include_namespaces": ["kubeflow"], "ttl": "24h"}`,
		})
	})

	Context("Preconditions", func() {
		It("should fail without a storage relation", func() {
			env.hook.relations[S3Endpoint] = nil
			env.action("list-backups", nil)

			Expect(env.hook.failure).To(Equal("Missing relation: [s3-credentials|azure-credentials]"))
			Expect(env.hook.results).To(BeNil())
		})

		It("should fail while storage is not configured", func() {
			env.velero.storageConfigured = false
			env.action("list-backups", nil)

			Expect(env.hook.failure).To(ContainSubstring("storage is not configured"))
		})

		It("should fail unknown actions", func() {
			env.action("explode", nil)

			Expect(env.hook.failure).To(Equal("Unknown action 'explode'"))
		})
	})

	Context("run-cli", func() {
		It("should run allowed commands", func() {
			env.velero.cliOut = "NAME   STATUS\nb1     Completed"
			env.action("run-cli", map[string]any{"command": `backup get --selector "app=kubeflow"`})

			Expect(env.velero.cliArgs).To(Equal([]string{"backup", "get", "--selector", "app=kubeflow"}))
			Expect(env.hook.results).To(Equal(map[string]any{"status": "success", "output": "NAME   STATUS\nb1     Completed"}))
		})

		It("should reject other commands", func() {
			env.action("run-cli", map[string]any{"command": "install --crds-only"})

			Expect(env.hook.failure).To(HavePrefix("Invalid command 'install'"))
			Expect(env.velero.cliArgs).To(BeNil())
		})

		It("should reject empty commands", func() {
			env.action("run-cli", map[string]any{"command": "  "})

			Expect(env.hook.failure).To(Equal("Command cannot be empty"))
		})

		It("should reject unbalanced quotes", func() {
			env.action("run-cli", map[string]any{"command": `get backups "oops`})

			Expect(env.hook.failure).To(HavePrefix("Invalid command"))
		})

		It("should include stderr of failed commands", func() {
			env.velero.cliErr = &velero.CLIError{Args: []string{"describe", "backup", "x"}, ExitCode: 1, Stderr: "not found\n"}
			env.action("run-cli", map[string]any{"command": "describe backup x"})

			Expect(env.hook.failure).To(Equal("'velero describe backup x' returned non-zero exit code: 1. not found"))
		})
	})

	Context("create-backup", func() {
		It("should back up a related target", func() {
			env.velero.backupName = "kubeflow-profiles-backup-x7k2p"
			env.action("create-backup", map[string]any{"target": "kubeflow:profiles-backup"})

			Expect(env.hook.failure).To(BeEmpty())
			Expect(env.velero.backupPrefix).To(Equal("kubeflow-profiles-backup-"))
			Expect(env.velero.backupSpec.IncludeNamespaces).To(Equal([]string{"kubeflow"}))
			Expect(env.velero.backupLabels).To(Equal(map[string]string{"app": "kubeflow", "endpoint": "profiles-backup"}))
			Expect(env.hook.results).To(Equal(map[string]any{"status": "success", "backup-name": "kubeflow-profiles-backup-x7k2p"}))
			Expect(env.notifier.sent).To(Equal([]string{"backup-success kubeflow:profiles-backup kubeflow-profiles-backup-x7k2p"}))
		})

		It("should override the ttl", func() {
			env.action("create-backup", map[string]any{"target": "kubeflow:profiles-backup", "ttl": "1h30m"})

			Expect(env.velero.backupSpec.TTL).To(HaveValue(Equal("1h30m")))
		})

		It("should reject an invalid ttl", func() {
			env.action("create-backup", map[string]any{"target": "kubeflow:profiles-backup", "ttl": "1 day"})

			Expect(env.hook.failure).To(HavePrefix("Invalid ttl '1 day'"))
		})

		It("should reject malformed targets", func() {
			env.action("create-backup", map[string]any{"target": "Kubeflow"})

			Expect(env.hook.failure).To(Equal("Invalid target 'Kubeflow', expected 'app:endpoint'"))
		})

		It("should reject unknown targets", func() {
			env.action("create-backup", map[string]any{"target": "mlflow:backup"})

			Expect(env.hook.failure).To(Equal("No backup target 'mlflow:backup' found in velero-backups relations"))
		})

		It("should notify failed backups", func() {
			env.velero.backupName = "kubeflow-profiles-backup-x7k2p"
			env.velero.backupErr = &velero.BackupStatusError{Name: "kubeflow-profiles-backup-x7k2p", Reason: "Status is 'PartiallyFailed'"}
			env.action("create-backup", map[string]any{"target": "kubeflow:profiles-backup"})

			Expect(env.hook.failure).To(Equal("Velero backup 'kubeflow-profiles-backup-x7k2p' failed: Status is 'PartiallyFailed'"))
			Expect(env.notifier.sent).To(Equal([]string{"backup-failure kubeflow:profiles-backup kubeflow-profiles-backup-x7k2p"}))
		})
	})

	Context("list-backups", func() {
		It("should list backups with missing fields as N/A", func() {
			completed := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
			env.velero.backups = []velero.BackupInfo{
				{
					UID:                 "1d3c",
					Name:                "kubeflow-profiles-backup-x7k2p",
					Labels:              map[string]string{"app": "kubeflow", "endpoint": "profiles-backup"},
					Phase:               "Completed",
					StartTimestamp:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
					CompletionTimestamp: &completed,
				},
				{
					UID:            "9f0a",
					Name:           "manual",
					Labels:         map[string]string{"app": "kubeflow"},
					Phase:          "InProgress",
					StartTimestamp: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
				},
			}
			env.action("list-backups", map[string]any{"app": "kubeflow"})

			Expect(env.velero.listLabels).To(Equal(map[string]string{"app": "kubeflow"}))
			backups := env.hook.results["backups"].(map[string]any)
			Expect(backups["1d3c"]).To(Equal(map[string]any{
				"name":                 "kubeflow-profiles-backup-x7k2p",
				"app":                  "kubeflow",
				"endpoint":             "profiles-backup",
				"phase":                "Completed",
				"start-timestamp":      "2025-03-01T10:00:00Z",
				"completion-timestamp": "2025-03-01T11:00:00Z",
			}))
			Expect(backups["9f0a"]).To(HaveKeyWithValue("endpoint", "N/A"))
			Expect(backups["9f0a"]).To(HaveKeyWithValue("completion-timestamp", "N/A"))
		})

		It("should require app with endpoint", func() {
			env.action("list-backups", map[string]any{"endpoint": "profiles-backup"})

			Expect(env.hook.failure).To(Equal("The 'endpoint' parameter requires 'app'"))
		})

		It("should report an empty list", func() {
			env.action("list-backups", nil)

			Expect(env.velero.listLabels).To(BeEmpty())
			Expect(env.hook.results).To(HaveKeyWithValue("message", "No backups found"))
		})
	})

	Context("restore", func() {
		It("should restore with the default policy", func() {
			env.velero.restoreName = "kubeflow-profiles-backup-x7k2p-20250301"
			env.action("restore", map[string]any{"backup-uid": "1d3c"})

			Expect(env.velero.restoreUID).To(Equal("1d3c"))
			Expect(env.velero.restorePolicy).To(Equal(velerov1api.PolicyTypeNone))
			Expect(env.hook.results).To(Equal(map[string]any{"status": "success", "restore-name": "kubeflow-profiles-backup-x7k2p-20250301"}))
			Expect(env.notifier.sent).To(Equal([]string{"restore-success 1d3c kubeflow-profiles-backup-x7k2p-20250301"}))
		})

		It("should pass the update policy", func() {
			env.action("restore", map[string]any{"backup-uid": "1d3c", "existing-resource-policy": "update"})

			Expect(env.velero.restorePolicy).To(Equal(velerov1api.PolicyTypeUpdate))
		})

		It("should reject unknown policies", func() {
			env.action("restore", map[string]any{"backup-uid": "1d3c", "existing-resource-policy": "replace"})

			Expect(env.hook.failure).To(HavePrefix("Invalid existing-resource-policy 'replace'"))
			Expect(env.velero.restoreUID).To(BeEmpty())
		})

		It("should notify failed restores", func() {
			env.velero.restoreErr = &velero.Error{Msg: "Velero Backup with UID '1d3c' not found", Err: errors.New("missing")}
			env.action("restore", map[string]any{"backup-uid": "1d3c"})

			Expect(env.hook.failure).To(Equal("Velero Backup with UID '1d3c' not found"))
			Expect(env.notifier.sent).To(Equal([]string{"restore-failure 1d3c "}))
		})
	})

	Context("schedules", func() {
		It("should create a schedule for a related target", func() {
			env.action("create-schedule", map[string]any{"target": "kubeflow:profiles-backup", "schedule": "0 3 * * *"})

			Expect(env.hook.failure).To(BeEmpty())
			Expect(env.velero.scheduleExpr).To(Equal("0 3 * * *"))
			Expect(env.velero.scheduleLabels).To(Equal(map[string]string{"app": "kubeflow", "endpoint": "profiles-backup"}))
			Expect(env.hook.results).To(Equal(map[string]any{
				"status":        "success",
				"schedule-name": "kubeflow-profiles-backup-abcde",
				"next-run":      "2025-03-02T03:00:00Z",
			}))
		})

		It("should reject invalid cron expressions before creating anything", func() {
			env.action("create-schedule", map[string]any{"target": "kubeflow:profiles-backup", "schedule": "every day"})

			Expect(env.hook.failure).To(HavePrefix("Invalid schedule 'every day'"))
			Expect(env.velero.scheduleExpr).To(BeEmpty())
		})

		It("should list schedules", func() {
			env.velero.schedules = []velero.ScheduleInfo{{
				Name:     "kubeflow-profiles-backup-abcde",
				Schedule: "@daily",
				Labels:   map[string]string{"app": "kubeflow", "endpoint": "profiles-backup"},
				Phase:    "Enabled",
			}}
			env.action("list-schedules", nil)

			schedules := env.hook.results["schedules"].(map[string]any)
			Expect(schedules["kubeflow-profiles-backup-abcde"]).To(Equal(map[string]any{
				"schedule":    "@daily",
				"app":         "kubeflow",
				"endpoint":    "profiles-backup",
				"phase":       "Enabled",
				"last-backup": "N/A",
			}))
		})
	})
})
