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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// NtfyNotifier sends notifications via ntfy.
type NtfyNotifier struct {
	log        logr.Logger
	httpClient *http.Client
}

// NewNtfyNotifier creates a new ntfy notifier.
func NewNtfyNotifier(log logr.Logger) *NtfyNotifier {
	return &NtfyNotifier{
		log: log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ntfyMessage is the JSON publish body accepted at the server root.
type ntfyMessage struct {
	Topic    string   `json:"topic"`
	Message  string   `json:"message"`
	Title    string   `json:"title,omitempty"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Notify sends a notification via ntfy.
func (n *NtfyNotifier) Notify(ctx context.Context, config NtfyConfig, event Event) error {
	title := fmt.Sprintf("%s/%s - %s", event.Namespace, event.Target, event.Operation.Title())
	tags := []string{"velero"}
	priority := 3
	if event.Type == EventTypeFailure {
		title += " Failed"
		tags = append(tags, "x")
		priority = 5
	} else {
		title += " Succeeded"
		tags = append(tags, "white_check_mark")
	}

	var msgBuilder strings.Builder
	msgBuilder.WriteString(event.Message)
	if event.Name != "" {
		fmt.Fprintf(&msgBuilder, "\nName: %s", event.Name)
	}
	if event.Duration > 0 {
		fmt.Fprintf(&msgBuilder, "\nDuration: %s", event.Duration.Round(time.Second))
	}

	body, err := json.Marshal(ntfyMessage{
		Topic:    config.Topic,
		Title:    title,
		Message:  msgBuilder.String(),
		Priority: priority,
		Tags:     tags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ntfy message: %w", err)
	}

	url := strings.TrimSuffix(config.ServerURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status code %d", resp.StatusCode)
	}

	n.log.V(1).Info("Sent ntfy notification", "topic", config.Topic, "type", event.Type)

	return nil
}
