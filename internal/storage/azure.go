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

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/juju/schema"
)

const azureStorageKeyEnvVar = "AZURE_STORAGE_ACCOUNT_ACCESS_KEY"

var azureFields = []field{
	{name: "container", checker: schema.String(), required: true},
	{name: "storage-account", checker: schema.String(), required: true},
	{name: "secret-key", checker: schema.String(), required: true},
	{name: "path", checker: schema.String()},
	{name: "resource-group", checker: schema.String()},
}

var servicePrincipalFields = []field{
	{name: "subscription-id", checker: schema.String(), required: true},
	{name: "tenant-id", checker: schema.String(), required: true},
	{name: "client-id", checker: schema.String(), required: true},
	{name: "client-secret", checker: schema.String(), required: true},
}

// ServicePrincipal holds the credentials shared over azure-service-principal.
type ServicePrincipal struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
}

// NewServicePrincipal validates azure-service-principal relation data.
func NewServicePrincipal(data map[string]string) (*ServicePrincipal, error) {
	cfg, err := coerce("AzureServicePrincipalConfig", servicePrincipalFields, data)
	if err != nil {
		return nil, err
	}
	return &ServicePrincipal{
		SubscriptionID: cfg["subscription-id"],
		TenantID:       cfg["tenant-id"],
		ClientID:       cfg["client-id"],
		ClientSecret:   cfg["client-secret"],
	}, nil
}

// AzureProvider serves Azure Blob Storage through velero-plugin-for-microsoft-azure.
type AzureProvider struct {
	pluginImage string

	container      string
	storageAccount string
	secretKey      string
	path           string
	resourceGroup  string

	principal *ServicePrincipal
	// serviceURL overrides the public blob endpoint.
	serviceURL string
}

// NewAzureProvider validates the azure-credentials relation data. principal
// may be nil.
func NewAzureProvider(pluginImage string, data map[string]string, principal *ServicePrincipal) (*AzureProvider, error) {
	cfg, err := coerce("AzureStorageConfig", azureFields, data)
	if err != nil {
		return nil, err
	}
	return &AzureProvider{
		pluginImage:    pluginImage,
		container:      cfg["container"],
		storageAccount: cfg["storage-account"],
		secretKey:      cfg["secret-key"],
		path:           cfg["path"],
		resourceGroup:  cfg["resource-group"],
		principal:      principal,
	}, nil
}

func (p *AzureProvider) Plugin() string      { return "azure" }
func (p *AzureProvider) PluginImage() string { return p.pluginImage }
func (p *AzureProvider) Bucket() string      { return p.container }
func (p *AzureProvider) Path() string        { return p.path }

func (p *AzureProvider) SecretData() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s\n", azureStorageKeyEnvVar, p.secretKey)
	b.WriteString("AZURE_CLOUD_NAME=AzurePublicCloud\n")
	if p.principal != nil {
		fmt.Fprintf(&b, "AZURE_SUBSCRIPTION_ID=%s\n", p.principal.SubscriptionID)
		fmt.Fprintf(&b, "AZURE_TENANT_ID=%s\n", p.principal.TenantID)
		fmt.Fprintf(&b, "AZURE_CLIENT_ID=%s\n", p.principal.ClientID)
		fmt.Fprintf(&b, "AZURE_CLIENT_SECRET=%s\n", p.principal.ClientSecret)
	}
	return b.String()
}

func (p *AzureProvider) BackupLocationConfig() map[string]string {
	cfg := map[string]string{
		"storageAccount":          p.storageAccount,
		"storageAccountKeyEnvVar": azureStorageKeyEnvVar,
	}
	if p.resourceGroup != "" {
		cfg["resourceGroup"] = p.resourceGroup
	}
	return cfg
}

func (p *AzureProvider) SnapshotLocationConfig() map[string]string {
	cfg := map[string]string{}
	if p.principal != nil {
		cfg["subscriptionId"] = p.principal.SubscriptionID
	}
	if p.resourceGroup != "" {
		cfg["resourceGroup"] = p.resourceGroup
	}
	return cfg
}

// Verify reads the container properties with the storage account key.
func (p *AzureProvider) Verify(ctx context.Context) error {
	cred, err := azblob.NewSharedKeyCredential(p.storageAccount, p.secretKey)
	if err != nil {
		return fmt.Errorf("invalid storage account key: %w", err)
	}

	serviceURL := p.serviceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", p.storageAccount)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return fmt.Errorf("failed to create blob client: %w", err)
	}

	if _, err := client.ServiceClient().NewContainerClient(p.container).GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("failed to access container %q: %w", p.container, err)
	}
	return nil
}
