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
	"fmt"
	"net/url"

	"github.com/canonical/velero-operator/internal/notifications"
)

// Config is the charm configuration as returned by config-get.
type Config struct {
	VeleroImage              string `json:"velero-image"`
	AWSPluginImage           string `json:"velero-aws-plugin-image"`
	AzurePluginImage         string `json:"velero-azure-plugin-image"`
	UseNodeAgent             bool   `json:"use-node-agent"`
	DefaultVolumesToFsBackup bool   `json:"default-volumes-to-fs-backup"`
	VerifyStorageCredentials bool   `json:"verify-storage-credentials"`

	PushgatewayURL    string `json:"pushgateway-url"`
	NtfyURL           string `json:"ntfy-url"`
	NtfyTopic         string `json:"ntfy-topic"`
	NtfyOnlyOnFailure bool   `json:"ntfy-only-on-failure"`
}

// ConfigError names the offending configuration option.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return "Invalid configuration: " + e.Key
	}
	return fmt.Sprintf("Invalid configuration: %s (%s)", e.Key, e.Reason)
}

// Validate checks the options the charm cannot run without.
func (c Config) Validate() error {
	images := []struct {
		key, value string
	}{
		{"velero-image", c.VeleroImage},
		{"velero-aws-plugin-image", c.AWSPluginImage},
		{"velero-azure-plugin-image", c.AzurePluginImage},
	}
	for _, image := range images {
		if image.value == "" {
			return &ConfigError{Key: image.key}
		}
	}

	if c.PushgatewayURL != "" {
		if err := validURL(c.PushgatewayURL); err != nil {
			return &ConfigError{Key: "pushgateway-url", Reason: err.Error()}
		}
	}
	if c.NtfyURL != "" {
		if err := validURL(c.NtfyURL); err != nil {
			return &ConfigError{Key: "ntfy-url", Reason: err.Error()}
		}
		if c.NtfyTopic == "" {
			return &ConfigError{Key: "ntfy-topic", Reason: "required when ntfy-url is set"}
		}
	}
	return nil
}

func validURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Notifications returns the enabled notification backends.
func (c Config) Notifications() notifications.Config {
	var cfg notifications.Config
	if c.PushgatewayURL != "" {
		cfg.Pushgateway = &notifications.PushgatewayConfig{URL: c.PushgatewayURL}
	}
	if c.NtfyURL != "" && c.NtfyTopic != "" {
		cfg.Ntfy = &notifications.NtfyConfig{
			ServerURL:     c.NtfyURL,
			Topic:         c.NtfyTopic,
			OnlyOnFailure: c.NtfyOnlyOnFailure,
		}
	}
	return cfg
}

// pluginImage returns the plugin image configured for a storage endpoint.
func (c Config) pluginImage(endpoint string) string {
	if endpoint == AzureEndpoint {
		return c.AzurePluginImage
	}
	return c.AWSPluginImage
}
