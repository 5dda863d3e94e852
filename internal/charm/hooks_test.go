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
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/canonical/velero-operator/internal/hookenv"
	"github.com/canonical/velero-operator/internal/velero"
)

func failingList(err error) *interceptor.Funcs {
	return &interceptor.Funcs{
		List: func(_ context.Context, _ client.WithWatch, _ client.ObjectList, _ ...client.ListOption) error {
			return err
		},
	}
}

var _ = Describe("Charm hooks", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	Context("When checking Kubernetes access", func() {
		It("should ask for trust when the API forbids access", func() {
			env.funcs = failingList(apierrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "", errors.New("denied")))
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked(
				"The charm must be deployed with '--trust' flag enabled, run 'juju trust velero-operator --scope=cluster'")))
		})

		It("should report other API errors generically", func() {
			env.funcs = failingList(apierrors.NewServiceUnavailable("down"))
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Failed to access K8s API. See juju debug-log for details.")))
		})
	})

	Context("When the configuration is invalid", func() {
		It("should block on an empty image", func() {
			env.hook.config["velero-image"] = ""
			env.hookEvent("config-changed")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Invalid configuration: velero-image")))
			Expect(env.velero.calls).To(BeEmpty())
		})

		It("should still remove Velero", func() {
			env.hook.config["velero-image"] = ""
			env.hookEvent("remove")

			Expect(env.velero.calls).To(Equal([]string{"remove"}))
			Expect(env.hook.status()).To(Equal(hookenv.Maintenance("Removing Velero from the cluster")))
		})
	})

	Context("When installing", func() {
		It("should install Velero and wait for a storage relation", func() {
			env.hookEvent("install")

			Expect(env.hook.statuses[0]).To(Equal(hookenv.Maintenance("Deploying Velero server on the cluster")))
			Expect(env.velero.calls).To(ContainElement("install velero/velero:v1.17.0 node-agent=false"))
			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Missing relation: [s3-credentials|azure-credentials]")))
		})

		It("should skip the install when Velero is present", func() {
			env.velero.installed = true
			env.hookEvent("install")

			Expect(env.velero.calls).To(BeEmpty())
		})

		It("should block when the install fails", func() {
			env.velero.installErr = &velero.Error{Msg: "Failed to install Velero on the cluster"}
			env.hookEvent("install")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Failed to install Velero. See juju debug-log for details.")))
		})

		It("should log blocked statuses at WARNING", func() {
			env.hookEvent("install")

			Expect(env.hook.logs).To(ContainElement("WARNING: Missing relation: [s3-credentials|azure-credentials]"))
			Expect(env.hook.logs).To(ContainElement("INFO: Deploying Velero server on the cluster"))
		})
	})

	Context("When updating the status", func() {
		BeforeEach(func() {
			env.velero.installed = true
		})

		It("should configure storage from the s3 relation and become active", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
			env.hookEvent("update-status")

			Expect(env.velero.calls).To(Equal([]string{"configure-storage aws"}))
			Expect(env.velero.provider.PluginImage()).To(Equal("velero/velero-plugin-for-aws:v1.13.0"))
			Expect(env.hook.status()).To(Equal(hookenv.Active("Unit is Ready")))
		})

		It("should not reconfigure storage that is already configured", func() {
			env.velero.storageConfigured = true
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
			env.hookEvent("update-status")

			Expect(env.velero.calls).To(BeEmpty())
			Expect(env.hook.status()).To(Equal(hookenv.Active("Unit is Ready")))
		})

		It("should block when two storage providers are related", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
			env.hook.relate(AzureEndpoint, "azure-credentials:2", "azure-integrator", map[string]string{})
			env.hookEvent("update-status")

			Expect(env.velero.calls).To(BeEmpty())
			Expect(env.hook.status()).To(Equal(hookenv.Blocked(
				"Only one Storage Provider should be related at the time: [s3-credentials|azure-credentials]")))
		})

		It("should wait for relation data", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", map[string]string{})
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Waiting("Waiting for s3-credentials relation data")))
		})

		It("should block on invalid relation data", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", map[string]string{"bucket": "backups"})
			env.hookEvent("update-status")

			Expect(env.hook.status().Kind).To(Equal(hookenv.StatusBlocked))
			Expect(env.hook.status().Message).To(HavePrefix("Invalid configuration: S3StorageConfig errors:"))
			Expect(env.hook.status().Message).To(ContainSubstring("'access-key' required"))
		})

		It("should report an unavailable deployment", func() {
			env.velero.deploymentErr = &velero.StatusError{Msg: "Velero Deployment is not ready: ImagePullBackOff"}
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Velero Deployment is not ready: ImagePullBackOff")))
		})

		It("should only check the node agent when it is enabled", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
			env.velero.nodeAgentErr = &velero.StatusError{Msg: "Velero NodeAgent is not ready: Not Available"}
			env.hookEvent("update-status")
			Expect(env.hook.status()).To(Equal(hookenv.Active("Unit is Ready")))

			env.hook.config["use-node-agent"] = true
			env.hookEvent("update-status")
			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Velero NodeAgent is not ready: Not Available")))
		})

		It("should report unavailable storage locations", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
			env.velero.locationsErr = &velero.StatusError{Msg: "BackupStorageLocation is unavailable"}
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("BackupStorageLocation is unavailable")))
		})

		It("should add the debug-log hint to operation failures", func() {
			env.velero.deploymentErr = &velero.Error{Msg: "Failed to get Velero Deployment"}
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Failed to get Velero Deployment. See juju debug-log for details.")))
		})

		It("should report API errors without leaking the server response", func() {
			env.velero.deploymentErr = apierrors.NewServiceUnavailable("etcdserver: leader changed")
			env.hookEvent("update-status")

			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Failed to access K8s API. See juju debug-log for details.")))
		})
	})

	Context("When the storage relation changes", func() {
		BeforeEach(func() {
			env.velero.installed = true
			env.velero.storageConfigured = true
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
		})

		It("should recreate the storage locations", func() {
			env.relationEvent(S3Endpoint, hookenv.RelationChanged, "s3-credentials:1")

			Expect(env.velero.calls).To(Equal([]string{"remove-storage", "configure-storage aws"}))
			Expect(env.hook.status()).To(Equal(hookenv.Active("Unit is Ready")))
		})

		It("should ignore the broken relation", func() {
			env.relationEvent(S3Endpoint, hookenv.RelationBroken, "s3-credentials:1")

			Expect(env.velero.calls).To(Equal([]string{"remove-storage"}))
			Expect(env.hook.status()).To(Equal(hookenv.Blocked("Missing relation: [s3-credentials|azure-credentials]")))
		})
	})

	Context("When the Azure service principal changes", func() {
		BeforeEach(func() {
			env.velero.installed = true
			env.velero.storageConfigured = true
		})

		It("should reconfigure Azure storage with the principal", func() {
			env.hook.relate(AzureEndpoint, "azure-credentials:3", "azure-storage-integrator", map[string]string{
				"container":       "backups",
				"storage-account": "account",
				"secret-key":      "secret",
			})
			env.hook.relate(AzureServicePrincipalEndpoint, "azure-service-principal:4", "azure-auth-integrator", map[string]string{
				"subscription-id": "sub",
				"tenant-id":       "tenant",
				"client-id":       "client",
				"client-secret":   "client-secret",
			})
			env.relationEvent(AzureServicePrincipalEndpoint, hookenv.RelationChanged, "azure-service-principal:4")

			Expect(env.velero.calls).To(Equal([]string{"remove-storage", "configure-storage azure"}))
			Expect(env.velero.provider.SecretData()).To(ContainSubstring("AZURE_CLIENT_ID=client"))
		})

		It("should leave S3 storage alone", func() {
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
			env.relationEvent(AzureServicePrincipalEndpoint, hookenv.RelationChanged, "azure-service-principal:4")

			Expect(env.velero.calls).To(BeEmpty())
		})
	})

	Context("When the configuration changes", func() {
		BeforeEach(func() {
			env.velero.installed = true
			env.velero.storageConfigured = true
			env.hook.relate(S3Endpoint, "s3-credentials:1", "s3-integrator", s3Data())
		})

		It("should update images and flags", func() {
			env.hook.config["velero-image"] = "velero/velero:v1.17.1"
			env.hook.config["velero-aws-plugin-image"] = "velero/velero-plugin-for-aws:v1.13.1"
			env.hook.config["default-volumes-to-fs-backup"] = true
			env.hookEvent("config-changed")

			Expect(env.velero.pluginImage).To(Equal("velero/velero-plugin-for-aws:v1.13.1"))
			Expect(env.velero.deploymentImage).To(Equal("velero/velero:v1.17.1"))
			Expect(env.velero.fsBackupFlag).To(HaveValue(BeTrue()))
			Expect(env.velero.calls).To(ContainElement("remove-node-agent"))
			Expect(env.hook.status()).To(Equal(hookenv.Active("Unit is Ready")))
		})

		It("should install the node agent when enabled", func() {
			env.velero.installed = false
			env.hook.config["use-node-agent"] = true
			env.hookEvent("config-changed")

			Expect(env.velero.calls).To(ContainElement("install velero/velero:v1.17.0 node-agent=true"))
			Expect(env.velero.nodeAgentImage).To(Equal("velero/velero:v1.17.0"))
			Expect(env.velero.calls).NotTo(ContainElement("remove-node-agent"))
		})
	})

	Context("When upgrading", func() {
		It("should upgrade the CRDs", func() {
			env.velero.installed = true
			env.hookEvent("upgrade-charm")

			Expect(env.hook.statuses[0]).To(Equal(hookenv.Maintenance("Upgrading Velero")))
			Expect(env.velero.calls).To(Equal([]string{"upgrade"}))
		})
	})

	Context("When publishing metrics", func() {
		BeforeEach(func() {
			env.hook.relate(MetricsEndpoint, "metrics-endpoint:7", "prometheus", map[string]string{})
		})

		It("should publish the scrape job as leader", func() {
			env.hook.leader = true
			env.relationEvent(MetricsEndpoint, hookenv.RelationJoined, "metrics-endpoint:7")

			data := env.hook.relationSets["metrics-endpoint:7"]
			Expect(data).To(HaveKey("scrape_jobs"))

			var jobs []scrapeJob
			Expect(json.Unmarshal([]byte(data["scrape_jobs"]), &jobs)).To(Succeed())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].MetricsPath).To(Equal("/metrics"))
			Expect(jobs[0].StaticConfigs[0].Targets).To(Equal([]string{"velero-metrics.velero-model.svc:8085"}))

			var metadata scrapeMetadata
			Expect(json.Unmarshal([]byte(data["scrape_metadata"]), &metadata)).To(Succeed())
			Expect(metadata.Application).To(Equal("velero-operator"))
			Expect(metadata.Model).To(Equal(testNamespace))
		})

		It("should not publish as a follower", func() {
			env.hookEvent("leader-elected")

			Expect(env.hook.relationSets).To(BeEmpty())
		})
	})

	Context("When backup targets change", func() {
		It("should log invalid targets", func() {
			env.hook.relate(BackupsEndpoint, "velero-backups:9", "kubeflow", map[string]string{
				"app":           "kubeflow",
				"relation_name": "profiles-backup",
				"spec":          `{"ttl": "forever"}`,
			})
			env.relationEvent(BackupsEndpoint, hookenv.RelationChanged, "velero-backups:9")

			Expect(env.hook.logs).To(ContainElement(HavePrefix("WARNING: Invalid backup target from kubeflow")))
			Expect(env.hook.statuses).To(BeEmpty())
		})
	})
})
