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

package notifications

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJobName is the Pushgateway job used when none is configured.
const DefaultJobName = "velero-operator"

// PushgatewayNotifier sends metrics to Prometheus Pushgateway.
type PushgatewayNotifier struct {
	log logr.Logger
}

// NewPushgatewayNotifier creates a new Pushgateway notifier.
func NewPushgatewayNotifier(log logr.Logger) *PushgatewayNotifier {
	return &PushgatewayNotifier{
		log: log,
	}
}

// Notify pushes the status, duration and start time of the operation. One
// group is kept per operation, target and model so a newer run replaces the
// previous one.
func (p *PushgatewayNotifier) Notify(ctx context.Context, config PushgatewayConfig, event Event) error {
	jobName := config.JobName
	if jobName == "" {
		jobName = DefaultJobName
	}
	prefix := "velero_" + string(event.Operation)

	registry := prometheus.NewRegistry()

	durationGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_duration_seconds",
		Help: fmt.Sprintf("Duration of the Velero %s in seconds", event.Operation),
	})
	durationGauge.Set(event.Duration.Seconds())
	registry.MustRegister(durationGauge)

	timestampGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_start_timestamp",
		Help: fmt.Sprintf("Unix timestamp when the Velero %s started", event.Operation),
	})
	timestampGauge.Set(float64(event.Timestamp.Unix()))
	registry.MustRegister(timestampGauge)

	// 1 = success, 0 = failure
	statusGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_status",
		Help: fmt.Sprintf("Status of the Velero %s (1 = success, 0 = failure)", event.Operation),
	})
	if event.Type == EventTypeSuccess {
		statusGauge.Set(1)
	}
	registry.MustRegister(statusGauge)

	pusher := push.New(config.URL, jobName).
		Grouping("operation", string(event.Operation)).
		Grouping("target", event.Target).
		Grouping("model", event.Namespace).
		Gatherer(registry)

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to Pushgateway: %w", err)
	}

	p.log.V(1).Info("Pushed metrics to Pushgateway",
		"url", config.URL,
		"job", jobName,
		"target", event.Target,
		"status", event.Type)

	return nil
}
