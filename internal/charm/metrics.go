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
	"fmt"

	"github.com/juju/names/v5"

	"github.com/canonical/velero-operator/internal/velero"
)

const charmName = "velero-operator"

type scrapeJob struct {
	JobName       string         `json:"job_name"`
	MetricsPath   string         `json:"metrics_path"`
	StaticConfigs []staticConfig `json:"static_configs"`
}

type staticConfig struct {
	Targets []string `json:"targets"`
}

type scrapeMetadata struct {
	Model       string `json:"model"`
	ModelUUID   string `json:"model_uuid"`
	Application string `json:"application"`
	Unit        string `json:"unit"`
	CharmName   string `json:"charm_name"`
}

// appName returns the application this unit belongs to.
func (c *Charm) appName() string {
	if app, err := names.UnitApplication(c.event.Unit); err == nil {
		return app
	}
	return charmName
}

// metricsTarget is the address of the Velero metrics Service.
func (c *Charm) metricsTarget() string {
	return fmt.Sprintf("%s.%s.svc:%d", velero.MetricsServiceName, c.velero.Namespace(), velero.MetricsPort)
}

// publishScrapeConfig shares the Velero scrape job with every related
// Prometheus. Only the leader may write application data.
func (c *Charm) publishScrapeConfig(ctx context.Context) error {
	leader, err := c.hook.IsLeader(ctx)
	if err != nil || !leader {
		return err
	}

	rels, err := c.relations(ctx, MetricsEndpoint)
	if err != nil || len(rels) == 0 {
		return err
	}

	jobs, err := json.Marshal([]scrapeJob{{
		JobName:       "velero",
		MetricsPath:   "/metrics",
		StaticConfigs: []staticConfig{{Targets: []string{c.metricsTarget()}}},
	}})
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(scrapeMetadata{
		Model:       c.event.ModelName,
		ModelUUID:   c.event.ModelUUID,
		Application: c.appName(),
		Unit:        c.event.Unit,
		CharmName:   charmName,
	})
	if err != nil {
		return err
	}

	data := map[string]string{
		"scrape_jobs":     string(jobs),
		"scrape_metadata": string(metadata),
	}
	for _, rel := range rels {
		c.log.Info("Publishing scrape config", "relation", rel.ID, "target", c.metricsTarget())
		if err := c.hook.SetRelationAppData(ctx, rel.ID, data); err != nil {
			return err
		}
	}
	return nil
}
