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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/juju/schema"
)

// S3 URI styles accepted in relation data.
const (
	S3URIStylePath    = "path"
	S3URIStyleVirtual = "virtual"
)

const defaultS3Region = "us-east-1"

var s3Fields = []field{
	{name: "bucket", checker: schema.String(), required: true},
	{name: "access-key", checker: schema.String(), required: true},
	{name: "secret-key", checker: schema.String(), required: true},
	{name: "region", checker: schema.String()},
	{name: "endpoint", checker: schema.String()},
	{name: "path", checker: schema.String()},
	{name: "s3-uri-style", checker: schema.OneOf(schema.Const(S3URIStylePath), schema.Const(S3URIStyleVirtual))},
}

// S3Provider serves S3 compatible object storage through velero-plugin-for-aws.
type S3Provider struct {
	pluginImage string

	bucket    string
	accessKey string
	secretKey string
	region    string
	endpoint  string
	path      string
	uriStyle  string
}

// NewS3Provider validates the s3-credentials relation data.
func NewS3Provider(pluginImage string, data map[string]string) (*S3Provider, error) {
	cfg, err := coerce("S3StorageConfig", s3Fields, data)
	if err != nil {
		return nil, err
	}
	return &S3Provider{
		pluginImage: pluginImage,
		bucket:      cfg["bucket"],
		accessKey:   cfg["access-key"],
		secretKey:   cfg["secret-key"],
		region:      cfg["region"],
		endpoint:    cfg["endpoint"],
		path:        cfg["path"],
		uriStyle:    cfg["s3-uri-style"],
	}, nil
}

func (p *S3Provider) Plugin() string      { return "aws" }
func (p *S3Provider) PluginImage() string { return p.pluginImage }
func (p *S3Provider) Bucket() string      { return p.bucket }
func (p *S3Provider) Path() string        { return p.path }

func (p *S3Provider) SecretData() string {
	return fmt.Sprintf("[default]\naws_access_key_id=%s\naws_secret_access_key=%s\n", p.accessKey, p.secretKey)
}

func (p *S3Provider) BackupLocationConfig() map[string]string {
	cfg := map[string]string{}
	if p.endpoint != "" {
		cfg["s3Url"] = p.endpoint
	}
	if p.region != "" {
		cfg["region"] = p.region
	}
	if p.uriStyle == S3URIStylePath {
		cfg["s3ForcePathStyle"] = "true"
	}
	return cfg
}

func (p *S3Provider) SnapshotLocationConfig() map[string]string {
	cfg := map[string]string{}
	if p.region != "" {
		cfg["region"] = p.region
	}
	return cfg
}

// Verify issues a HeadBucket request with the relation credentials.
func (p *S3Provider) Verify(ctx context.Context) error {
	region := p.region
	if region == "" {
		region = defaultS3Region
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(p.accessKey, p.secretKey, "")),
	)
	if err != nil {
		return fmt.Errorf("failed to load S3 client config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if p.endpoint != "" {
			o.BaseEndpoint = aws.String(p.endpoint)
		}
		o.UsePathStyle = p.uriStyle == S3URIStylePath
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return fmt.Errorf("failed to access bucket %q: %w", p.bucket, err)
	}
	return nil
}
