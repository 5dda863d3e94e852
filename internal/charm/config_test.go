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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func validConfig() Config {
	return Config{
		VeleroImage:      "velero/velero:v1.17.0",
		AWSPluginImage:   "velero/velero-plugin-for-aws:v1.13.0",
		AzurePluginImage: "velero/velero-plugin-for-microsoft-azure:v1.13.0",
	}
}

var _ = Describe("Config", func() {
	DescribeTable("Validate",
		func(mutate func(*Config), expected string) {
			cfg := validConfig()
			mutate(&cfg)
			err := cfg.Validate()
			if expected == "" {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(MatchError(expected))
		},
		Entry("valid", func(*Config) {}, ""),
		Entry("empty velero image", func(c *Config) { c.VeleroImage = "" }, "Invalid configuration: velero-image"),
		Entry("empty azure plugin image", func(c *Config) { c.AzurePluginImage = "" }, "Invalid configuration: velero-azure-plugin-image"),
		Entry("pushgateway without scheme", func(c *Config) { c.PushgatewayURL = "pushgateway:9091" },
			`Invalid configuration: pushgateway-url (unsupported scheme "pushgateway")`),
		Entry("ntfy without topic", func(c *Config) { c.NtfyURL = "https://ntfy.sh" },
			"Invalid configuration: ntfy-topic (required when ntfy-url is set)"),
		Entry("ntfy with topic", func(c *Config) {
			c.NtfyURL = "https://ntfy.sh"
			c.NtfyTopic = "backups"
		}, ""),
	)

	It("should only enable configured notification backends", func() {
		cfg := validConfig()
		Expect(cfg.Notifications().Enabled()).To(BeFalse())

		cfg.PushgatewayURL = "http://pushgateway:9091"
		cfg.NtfyURL = "https://ntfy.sh"
		cfg.NtfyTopic = "backups"
		cfg.NtfyOnlyOnFailure = true

		notify := cfg.Notifications()
		Expect(notify.Pushgateway.URL).To(Equal("http://pushgateway:9091"))
		Expect(notify.Ntfy.Topic).To(Equal("backups"))
		Expect(notify.Ntfy.OnlyOnFailure).To(BeTrue())
	})

	It("should pick the plugin image by endpoint", func() {
		cfg := validConfig()
		Expect(cfg.pluginImage(S3Endpoint)).To(Equal("velero/velero-plugin-for-aws:v1.13.0"))
		Expect(cfg.pluginImage(AzureEndpoint)).To(Equal("velero/velero-plugin-for-microsoft-azure:v1.13.0"))
	})
})
