// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// platformRegistration is the payload sent to the platform's app registry.
type platformRegistration struct {
	AppID       string `json:"app_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Agents      int    `json:"agents"`
	Teams       int    `json:"teams"`
	Workflows   int    `json:"workflows"`
}

// registerOnPlatform announces this app to the platform so hosted monitoring
// can pick it up. Failures are logged and otherwise ignored; registration
// must never prevent the bridge from serving requests.
func (a *App) registerOnPlatform() {
	if !a.cfg.Monitoring || a.cfg.PlatformURL == "" {
		return
	}

	payload := platformRegistration{
		AppID:       a.appID,
		Name:        a.name,
		Description: a.description,
		Type:        "bridge",
		Agents:      a.registry.AgentCount(),
		Teams:       a.registry.TeamCount(),
		Workflows:   a.registry.WorkflowCount(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.log.Warn("", "", "Could not encode platform registration", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(a.cfg.PlatformURL+"/v1/apps/register", "application/json", bytes.NewReader(body))
	if err != nil {
		a.log.Warn("", "", "Platform registration failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.log.Warn("", "", "Platform registration rejected", map[string]interface{}{
			"status": fmt.Sprintf("%d", resp.StatusCode),
		})
		return
	}

	a.log.Info("", "", "Registered app on platform", map[string]interface{}{
		"app_id": a.appID,
	})
}
