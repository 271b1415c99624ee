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

// Package dispatch implements the universal run dispatcher: it resolves
// exactly one target runnable from a request, validates its requirements,
// classifies and routes uploaded attachments, and executes the target either
// synchronously or as a streamed chunk sequence.
package dispatch

import (
	"context"

	"github.com/google/uuid"

	"axonflow/agentbridge/document"
	"axonflow/agentbridge/runnable"
	"axonflow/agentbridge/shared/logger"
)

// Request is one run request against exactly one runnable. At most one of
// AgentID, TeamID and WorkflowID may be non-empty.
type Request struct {
	AgentID    string
	TeamID     string
	WorkflowID string

	// Message is required for agent and team targets.
	Message string
	// WorkflowInput is required for workflow targets.
	WorkflowInput map[string]interface{}

	SessionID string
	UserID    string
	Stream    bool
	Files     []File
}

// Response is the terminal result of a synchronous run. Exactly one of the
// three target id fields is set.
type Response struct {
	Content    string        `json:"content"`
	AgentID    string        `json:"agent_id,omitempty"`
	TeamID     string        `json:"team_id,omitempty"`
	WorkflowID string        `json:"workflow_id,omitempty"`
	SessionID  string        `json:"session_id"`
	Skipped    []SkippedFile `json:"skipped_files,omitempty"`
}

// Options holds dependency overrides passed to New.
type Options struct {
	// Readers maps document MIME types to parsers. Defaults to
	// document.DefaultReaders().
	Readers map[string]document.Reader
	// Logger receives dispatch logs. Defaults to a "dispatch" logger.
	Logger *logger.Logger
}

// Dispatcher resolves and executes run requests against an immutable
// registry. It is stateless per call and safe for concurrent use.
type Dispatcher struct {
	registry *runnable.Registry
	readers  map[string]document.Reader
	log      *logger.Logger
}

// New constructs a Dispatcher for the given registry.
func New(registry *runnable.Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Readers: document.DefaultReaders(),
		Logger:  logger.New("dispatch"),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{
		registry: registry,
		readers:  opts.Readers,
		log:      opts.Logger,
	}
}

// EnsureSession fills in a fresh session id when the request carries none.
func EnsureSession(req *Request) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
}

// target is the resolved runnable for one request.
type target struct {
	kind     runnable.Kind
	id       string
	agent    runnable.Agent
	team     runnable.Team
	workflow runnable.Workflow
}

// resolve selects exactly one target from the request ids.
func (d *Dispatcher) resolve(req Request) (*target, error) {
	provided := 0
	for _, id := range []string{req.AgentID, req.TeamID, req.WorkflowID} {
		if id != "" {
			provided++
		}
	}
	if provided > 1 {
		return nil, errAmbiguousTarget()
	}
	if provided == 0 {
		return nil, errMissingTarget()
	}

	switch {
	case req.AgentID != "":
		agent, ok := d.registry.Agent(req.AgentID)
		if !ok {
			return nil, errNotFound("agent", req.AgentID)
		}
		return &target{kind: runnable.KindAgent, id: req.AgentID, agent: agent}, nil
	case req.TeamID != "":
		team, ok := d.registry.Team(req.TeamID)
		if !ok {
			return nil, errNotFound("team", req.TeamID)
		}
		return &target{kind: runnable.KindTeam, id: req.TeamID, team: team}, nil
	default:
		workflow, ok := d.registry.Workflow(req.WorkflowID)
		if !ok {
			return nil, errNotFound("workflow", req.WorkflowID)
		}
		return &target{kind: runnable.KindWorkflow, id: req.WorkflowID, workflow: workflow}, nil
	}
}

// validate enforces per-kind input requirements.
func (d *Dispatcher) validate(t *target, req Request) error {
	switch t.kind {
	case runnable.KindAgent, runnable.KindTeam:
		if req.Message == "" {
			return errMissingMessage()
		}
	case runnable.KindWorkflow:
		if len(req.WorkflowInput) == 0 {
			return errMissingInput()
		}
	}
	return nil
}

// prepare runs every fail-fast step: target resolution, requirement
// validation, session derivation and attachment routing. Nothing is executed
// and no side effect besides knowledge ingestion happens here.
func (d *Dispatcher) prepare(ctx context.Context, req *Request) (*target, *classified, error) {
	t, err := d.resolve(*req)
	if err != nil {
		return nil, nil, err
	}
	if err := d.validate(t, *req); err != nil {
		return nil, nil, err
	}
	EnsureSession(req)

	files := &classified{}
	if len(req.Files) > 0 {
		files, err = d.classifyFiles(req.Files)
		if err != nil {
			return nil, nil, err
		}
	}

	// Document routing depends on the target kind. Agents ingest into their
	// knowledge store before the run; teams receive the parsed documents as
	// run inputs; workflows take structured input only, so attachments are
	// dropped with a log line.
	switch t.kind {
	case runnable.KindAgent:
		if len(files.Documents) > 0 {
			store := t.agent.Knowledge()
			if store == nil {
				return nil, nil, errNoKnowledgeBase(t.id)
			}
			if err := store.LoadDocuments(ctx, files.Documents); err != nil {
				d.log.ErrorWithCode(req.SessionID, "", "Knowledge ingestion failed", 500, err, map[string]interface{}{
					"agent_id": t.id,
				})
				return nil, nil, errExecution(err)
			}
			// Ingested, not passed inline.
			files.Documents = nil
		}
	case runnable.KindWorkflow:
		if len(req.Files) > 0 {
			d.log.Warn(req.SessionID, "", "Ignoring attachments on workflow run", map[string]interface{}{
				"workflow_id": t.id,
				"files":       len(req.Files),
			})
		}
	}

	return t, files, nil
}

// runInput assembles the Input for agent and team targets.
func runInput(req Request, files *classified) runnable.Input {
	return runnable.Input{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Images:    files.Images,
		Audio:     files.Audio,
		Videos:    files.Videos,
		Documents: files.Documents,
	}
}

// Dispatch executes one synchronous run and returns its terminal result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	t, files, err := d.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	resp := &Response{SessionID: req.SessionID, Skipped: files.Skipped}

	var result *runnable.Result
	switch t.kind {
	case runnable.KindAgent:
		result, err = t.agent.Run(ctx, runInput(req, files))
		resp.AgentID = t.id
	case runnable.KindTeam:
		result, err = t.team.Run(ctx, runInput(req, files))
		resp.TeamID = t.id
	case runnable.KindWorkflow:
		// Run against a private working copy so concurrent runs of the same
		// workflow id never share per-run session and user state.
		result, err = t.workflow.Clone().Run(ctx, runnable.WorkflowInput{
			Input:     req.WorkflowInput,
			SessionID: req.SessionID,
			UserID:    req.UserID,
		})
		resp.WorkflowID = t.id
	}
	if err != nil {
		d.log.ErrorWithCode(req.SessionID, "", "Run failed", 500, err, map[string]interface{}{
			"kind": string(t.kind), "id": t.id,
		})
		return nil, errExecution(err)
	}

	resp.Content = result.Content
	return resp, nil
}

// DispatchStream executes one streaming run. All resolution and validation
// failures are returned synchronously, before any chunk is produced; once the
// returned channel exists, failures surface as a terminal error chunk, never
// as an error value. The channel is closed when the run finishes or ctx is
// canceled.
func (d *Dispatcher) DispatchStream(ctx context.Context, req Request) (<-chan runnable.Chunk, error) {
	t, files, err := d.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	var (
		chunks <-chan runnable.Chunk
		errs   <-chan error
	)
	switch t.kind {
	case runnable.KindAgent:
		chunks, errs, err = t.agent.RunStream(ctx, runInput(req, files))
	case runnable.KindTeam:
		chunks, errs, err = t.team.RunStream(ctx, runInput(req, files))
	case runnable.KindWorkflow:
		chunks, errs, err = t.workflow.Clone().RunStream(ctx, runnable.WorkflowInput{
			Input:     req.WorkflowInput,
			SessionID: req.SessionID,
			UserID:    req.UserID,
		})
	}
	if err != nil {
		// The runnable refused to start; the response channel is not
		// committed yet, so this still surfaces as a synchronous failure.
		d.log.ErrorWithCode(req.SessionID, "", "Stream start failed", 500, err, map[string]interface{}{
			"kind": string(t.kind), "id": t.id,
		})
		return nil, errExecution(err)
	}

	out := make(chan runnable.Chunk)
	go d.forward(ctx, t, req.SessionID, chunks, errs, out)
	return out, nil
}

// forward bridges the runnable's chunk and error channels onto out,
// preserving chunk order. A mid-stream error becomes one terminal error
// chunk. Forwarding stops promptly when ctx is canceled so no chunks are
// produced after the response channel is gone.
func (d *Dispatcher) forward(ctx context.Context, t *target, sessionID string, chunks <-chan runnable.Chunk, errs <-chan error, out chan<- runnable.Chunk) {
	defer close(out)

	for chunks != nil || errs != nil {
		select {
		case <-ctx.Done():
			return

		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			d.log.ErrorWithCode(sessionID, "", "Run failed mid-stream", 500, err, map[string]interface{}{
				"kind": string(t.kind), "id": t.id,
			})
			select {
			case out <- runnable.Chunk{Error: err.Error()}:
			case <-ctx.Done():
			}
			return
		}
	}
}
