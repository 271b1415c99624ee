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

package runnable

import (
	"fmt"
)

// Registry is the id-to-instance lookup table for all registered runnables.
// It is populated once at application assembly time and read-only afterwards,
// so lookups need no locking.
type Registry struct {
	agents    map[string]Agent
	teams     map[string]Team
	workflows map[string]Workflow
}

// NewRegistry builds a registry from the provided runnables. At least one
// runnable must be supplied, ids must be non-empty, and each id must be
// unique within its kind.
func NewRegistry(agents []Agent, teams []Team, workflows []Workflow) (*Registry, error) {
	if len(agents) == 0 && len(teams) == 0 && len(workflows) == 0 {
		return nil, fmt.Errorf("at least one agent, team or workflow must be provided")
	}

	r := &Registry{
		agents:    make(map[string]Agent, len(agents)),
		teams:     make(map[string]Team, len(teams)),
		workflows: make(map[string]Workflow, len(workflows)),
	}

	for _, a := range agents {
		if a.ID() == "" {
			return nil, fmt.Errorf("agent with empty id")
		}
		if _, exists := r.agents[a.ID()]; exists {
			return nil, fmt.Errorf("duplicate agent id: %s", a.ID())
		}
		r.agents[a.ID()] = a
	}
	for _, t := range teams {
		if t.ID() == "" {
			return nil, fmt.Errorf("team with empty id")
		}
		if _, exists := r.teams[t.ID()]; exists {
			return nil, fmt.Errorf("duplicate team id: %s", t.ID())
		}
		r.teams[t.ID()] = t
	}
	for _, w := range workflows {
		if w.ID() == "" {
			return nil, fmt.Errorf("workflow with empty id")
		}
		if _, exists := r.workflows[w.ID()]; exists {
			return nil, fmt.Errorf("duplicate workflow id: %s", w.ID())
		}
		r.workflows[w.ID()] = w
	}

	return r, nil
}

// Agent returns the agent registered under id, or false when absent.
func (r *Registry) Agent(id string) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Team returns the team registered under id, or false when absent.
func (r *Registry) Team(id string) (Team, bool) {
	t, ok := r.teams[id]
	return t, ok
}

// Workflow returns the workflow registered under id, or false when absent.
func (r *Registry) Workflow(id string) (Workflow, bool) {
	w, ok := r.workflows[id]
	return w, ok
}

// AgentCount returns the number of registered agents.
func (r *Registry) AgentCount() int { return len(r.agents) }

// TeamCount returns the number of registered teams.
func (r *Registry) TeamCount() int { return len(r.teams) }

// WorkflowCount returns the number of registered workflows.
func (r *Registry) WorkflowCount() int { return len(r.workflows) }
