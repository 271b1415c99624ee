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

// Package runnable defines the contracts the bridge dispatches against:
// agents, teams and workflows, plus the immutable registry they are looked
// up in. The execution engines behind these interfaces live outside this
// repository; the bridge only depends on the run/stream contract.
package runnable

import (
	"context"

	"axonflow/agentbridge/document"
)

// Kind identifies one of the three runnable variants.
type Kind string

const (
	KindAgent    Kind = "agent"
	KindTeam     Kind = "team"
	KindWorkflow Kind = "workflow"
)

// Media is one inline multimodal attachment passed to a run.
type Media struct {
	ContentType string
	Filename    string
	Data        []byte
}

// Input carries everything an agent or team run consumes.
type Input struct {
	Message   string
	SessionID string
	UserID    string
	Images    []Media
	Audio     []Media
	Videos    []Media
	// Documents holds parsed document uploads. Teams receive them alongside
	// the message; agents ingest them into their knowledge store before the
	// run instead.
	Documents []document.Document
}

// WorkflowInput carries a structured workflow run request. SessionID and
// UserID are per-run fields; they must never be written onto a shared
// workflow instance (see Workflow.Clone).
type WorkflowInput struct {
	Input     map[string]interface{}
	SessionID string
	UserID    string
}

// Result is the terminal output of a synchronous run.
type Result struct {
	Content string
}

// Chunk is one incremental unit of a streamed run. A chunk with Done set or
// a non-empty Error terminates the sequence.
type Chunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// KnowledgeStore is the per-agent content index document uploads are loaded
// into. Concurrency discipline is the store's own concern.
type KnowledgeStore interface {
	LoadDocuments(ctx context.Context, docs []document.Document) error
}

// Agent is a single runnable agent. Implementations must be safe for
// concurrent Run calls.
type Agent interface {
	ID() string
	// Knowledge returns the agent's knowledge store, or nil when the agent
	// has none configured.
	Knowledge() KnowledgeStore
	Run(ctx context.Context, in Input) (*Result, error)
	// RunStream produces chunks on the first channel and at most one error
	// on the second. Both channels are closed when the run finishes.
	RunStream(ctx context.Context, in Input) (<-chan Chunk, <-chan error, error)
}

// Team is a runnable group of agents. Implementations must be safe for
// concurrent Run calls.
type Team interface {
	ID() string
	Run(ctx context.Context, in Input) (*Result, error)
	RunStream(ctx context.Context, in Input) (<-chan Chunk, <-chan error, error)
}

// Workflow is a runnable multi-step pipeline. Unlike agents and teams,
// workflow instances hold per-run fields, so every run must execute against
// a Clone of the registered instance.
type Workflow interface {
	ID() string
	// Clone returns an independent working copy. The dispatcher always runs
	// against the clone so concurrent runs of the same workflow id never
	// share session or user state.
	Clone() Workflow
	Run(ctx context.Context, in WorkflowInput) (*Result, error)
	RunStream(ctx context.Context, in WorkflowInput) (<-chan Chunk, <-chan error, error)
}
