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

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/agentbridge/document"
	"axonflow/agentbridge/runnable"
)

// fakeKnowledge records ingested documents.
type fakeKnowledge struct {
	mu      sync.Mutex
	docs    []document.Document
	loadErr error
}

func (k *fakeKnowledge) LoadDocuments(ctx context.Context, docs []document.Document) error {
	if k.loadErr != nil {
		return k.loadErr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.docs = append(k.docs, docs...)
	return nil
}

// fakeAgent is a scriptable Agent.
type fakeAgent struct {
	id        string
	knowledge runnable.KnowledgeStore
	runErr    error
	chunks    []runnable.Chunk
	streamErr error // delivered after chunks
	runCalls  int
	lastInput runnable.Input
}

func (a *fakeAgent) ID() string                         { return a.id }
func (a *fakeAgent) Knowledge() runnable.KnowledgeStore { return a.knowledge }

func (a *fakeAgent) Run(ctx context.Context, in runnable.Input) (*runnable.Result, error) {
	a.runCalls++
	a.lastInput = in
	if a.runErr != nil {
		return nil, a.runErr
	}
	return &runnable.Result{Content: "echo: " + in.Message}, nil
}

func (a *fakeAgent) RunStream(ctx context.Context, in runnable.Input) (<-chan runnable.Chunk, <-chan error, error) {
	a.runCalls++
	a.lastInput = in
	if a.runErr != nil {
		return nil, nil, a.runErr
	}
	chunks := make(chan runnable.Chunk)
	errs := make(chan error)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, c := range a.chunks {
			select {
			case chunks <- c:
			case <-ctx.Done():
				return
			}
		}
		if a.streamErr != nil {
			errs <- a.streamErr
		}
	}()
	return chunks, errs, nil
}

// fakeTeam is a scriptable Team.
type fakeTeam struct {
	id        string
	lastInput runnable.Input
}

func (t *fakeTeam) ID() string { return t.id }

func (t *fakeTeam) Run(ctx context.Context, in runnable.Input) (*runnable.Result, error) {
	t.lastInput = in
	return &runnable.Result{Content: "team: " + in.Message}, nil
}

func (t *fakeTeam) RunStream(ctx context.Context, in runnable.Input) (<-chan runnable.Chunk, <-chan error, error) {
	t.lastInput = in
	chunks := make(chan runnable.Chunk, 1)
	errs := make(chan error)
	chunks <- runnable.Chunk{Content: "team chunk"}
	close(chunks)
	close(errs)
	return chunks, errs, nil
}

// fakeWorkflow counts clones so tests can assert the private-copy rule.
type fakeWorkflow struct {
	id        string
	mu        sync.Mutex
	clones    int
	lastInput runnable.WorkflowInput
}

func (w *fakeWorkflow) ID() string { return w.id }

func (w *fakeWorkflow) Clone() runnable.Workflow {
	w.mu.Lock()
	w.clones++
	w.mu.Unlock()
	// The clone shares the counter but carries no per-run state.
	return &workflowCopy{parent: w}
}

func (w *fakeWorkflow) Run(ctx context.Context, in runnable.WorkflowInput) (*runnable.Result, error) {
	return nil, fmt.Errorf("run called on shared workflow instance")
}

func (w *fakeWorkflow) RunStream(ctx context.Context, in runnable.WorkflowInput) (<-chan runnable.Chunk, <-chan error, error) {
	return nil, nil, fmt.Errorf("run called on shared workflow instance")
}

type workflowCopy struct {
	parent *fakeWorkflow
}

func (c *workflowCopy) ID() string               { return c.parent.id }
func (c *workflowCopy) Clone() runnable.Workflow { return c }

func (c *workflowCopy) Run(ctx context.Context, in runnable.WorkflowInput) (*runnable.Result, error) {
	c.parent.mu.Lock()
	c.parent.lastInput = in
	c.parent.mu.Unlock()
	return &runnable.Result{Content: "workflow done"}, nil
}

func (c *workflowCopy) RunStream(ctx context.Context, in runnable.WorkflowInput) (<-chan runnable.Chunk, <-chan error, error) {
	chunks := make(chan runnable.Chunk, 1)
	errs := make(chan error)
	chunks <- runnable.Chunk{Content: "workflow chunk", Done: true}
	close(chunks)
	close(errs)
	return chunks, errs, nil
}

func newTestDispatcher(t *testing.T, agents []runnable.Agent, teams []runnable.Team, workflows []runnable.Workflow) *Dispatcher {
	t.Helper()
	reg, err := runnable.NewRegistry(agents, teams, workflows)
	require.NoError(t, err)
	return New(reg)
}

func TestDispatch_AmbiguousTarget(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, []runnable.Team{&fakeTeam{id: "support"}}, nil)

	_, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", TeamID: "support", Message: "Hello",
	})
	require.Error(t, err)
	assert.Equal(t, KindAmbiguousTarget, KindOf(err))
	assert.Zero(t, agent.runCalls, "no execution may happen on an ambiguous target")
}

func TestDispatch_MissingTarget(t *testing.T) {
	d := newTestDispatcher(t, []runnable.Agent{&fakeAgent{id: "assistant"}}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{Message: "Hello"})
	require.Error(t, err)
	assert.Equal(t, KindMissingTarget, KindOf(err))
}

func TestDispatch_NotFound(t *testing.T) {
	d := newTestDispatcher(t, []runnable.Agent{&fakeAgent{id: "assistant"}}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{AgentID: "ghost", Message: "Hello"})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDispatch_MissingMessage(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	team := &fakeTeam{id: "support"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, []runnable.Team{team}, nil)

	_, err := d.Dispatch(context.Background(), Request{AgentID: "assistant"})
	require.Error(t, err)
	assert.Equal(t, KindMissingMessage, KindOf(err))
	assert.Zero(t, agent.runCalls)

	_, err = d.Dispatch(context.Background(), Request{TeamID: "support"})
	require.Error(t, err)
	assert.Equal(t, KindMissingMessage, KindOf(err))
}

func TestDispatch_MissingWorkflowInput(t *testing.T) {
	wf := &fakeWorkflow{id: "pipeline"}
	d := newTestDispatcher(t, nil, nil, []runnable.Workflow{wf})

	_, err := d.Dispatch(context.Background(), Request{WorkflowID: "pipeline"})
	require.Error(t, err)
	assert.Equal(t, KindMissingInput, KindOf(err))
	assert.Zero(t, wf.clones)
}

func TestDispatch_AgentRun(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	resp, err := d.Dispatch(context.Background(), Request{AgentID: "assistant", Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo: Hello", resp.Content)
	assert.Equal(t, "assistant", resp.AgentID)
	assert.Empty(t, resp.TeamID)
	assert.NotEmpty(t, resp.SessionID, "a fresh session id is generated when absent")
}

func TestDispatch_SessionIDPreserved(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	resp, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "Hello", SessionID: "session-42", UserID: "user-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-42", resp.SessionID)
	assert.Equal(t, "session-42", agent.lastInput.SessionID)
	assert.Equal(t, "user-7", agent.lastInput.UserID)
}

func TestDispatch_ExecutionError(t *testing.T) {
	agent := &fakeAgent{id: "assistant", runErr: errors.New("model unavailable")}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{AgentID: "assistant", Message: "Hello"})
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
	assert.ErrorContains(t, errors.Unwrap(err.(*Error)), "model unavailable")
}

func TestDispatch_WorkflowUsesClone(t *testing.T) {
	wf := &fakeWorkflow{id: "pipeline"}
	d := newTestDispatcher(t, nil, nil, []runnable.Workflow{wf})

	resp, err := d.Dispatch(context.Background(), Request{
		WorkflowID:    "pipeline",
		WorkflowInput: map[string]interface{}{"topic": "go"},
		UserID:        "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "workflow done", resp.Content)
	assert.Equal(t, "pipeline", resp.WorkflowID)
	assert.Equal(t, 1, wf.clones, "every run must execute against a private copy")
	assert.Equal(t, "user-1", wf.lastInput.UserID)
	assert.Equal(t, "go", wf.lastInput.Input["topic"])
}

func TestDispatch_ImageRoutedToMedia(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	resp, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "What is in this picture?",
		Files: []File{{Name: "photo.png", ContentType: "image/png", Data: []byte{0x89, 0x50}}},
	})
	require.NoError(t, err)
	require.Len(t, agent.lastInput.Images, 1)
	assert.Equal(t, "photo.png", agent.lastInput.Images[0].Filename)
	assert.Empty(t, agent.lastInput.Documents, "an image must never reach the document path")
	assert.Empty(t, resp.Skipped)
}

func TestDispatch_EmptyMediaSkippedNotFatal(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	resp, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "Hello",
		Files: []File{
			{Name: "broken.png", ContentType: "image/png", Data: nil},
			{Name: "sound.wav", ContentType: "audio/wav", Data: []byte("RIFF")},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, agent.lastInput.Images)
	require.Len(t, agent.lastInput.Audio, 1)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "broken.png", resp.Skipped[0].Name)
}

func TestDispatch_UnsupportedFileTypeAborts(t *testing.T) {
	agent := &fakeAgent{id: "assistant"}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "Hello",
		Files: []File{
			{Name: "photo.png", ContentType: "image/png", Data: []byte{0x89}},
			{Name: "weird.bin", ContentType: "application/weird", Data: []byte{0x00}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, KindUnsupportedFileType, KindOf(err))
	assert.Zero(t, agent.runCalls, "the whole request aborts on an unsupported type")
}

func TestDispatch_DocumentIngestedIntoKnowledge(t *testing.T) {
	store := &fakeKnowledge{}
	agent := &fakeAgent{id: "assistant", knowledge: store}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "Summarize the notes",
		Files: []File{{Name: "notes.txt", ContentType: "text/plain", Data: []byte("meeting notes")}},
	})
	require.NoError(t, err)
	require.Len(t, store.docs, 1)
	assert.Equal(t, "meeting notes", store.docs[0].Content)
	assert.Empty(t, agent.lastInput.Documents, "ingested documents are not passed inline")
}

func TestDispatch_NoKnowledgeBase(t *testing.T) {
	agent := &fakeAgent{id: "assistant"} // no knowledge store
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "Summarize",
		Files: []File{{Name: "notes.txt", ContentType: "text/plain", Data: []byte("notes")}},
	})
	require.Error(t, err)
	assert.Equal(t, KindNoKnowledgeBase, KindOf(err))
	assert.Zero(t, agent.runCalls)
}

func TestDispatch_IngestionFailureIsExecutionError(t *testing.T) {
	store := &fakeKnowledge{loadErr: errors.New("index unavailable")}
	agent := &fakeAgent{id: "assistant", knowledge: store}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	_, err := d.Dispatch(context.Background(), Request{
		AgentID: "assistant", Message: "Summarize",
		Files: []File{{Name: "notes.txt", ContentType: "text/plain", Data: []byte("notes")}},
	})
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
}

func TestDispatch_TeamReceivesDocuments(t *testing.T) {
	team := &fakeTeam{id: "support"}
	d := newTestDispatcher(t, nil, []runnable.Team{team}, nil)

	_, err := d.Dispatch(context.Background(), Request{
		TeamID: "support", Message: "Review this",
		Files: []File{{Name: "notes.txt", ContentType: "text/plain", Data: []byte("customer notes")}},
	})
	require.NoError(t, err)
	require.Len(t, team.lastInput.Documents, 1)
	assert.Equal(t, "customer notes", team.lastInput.Documents[0].Content)
}

func TestDispatchStream_ChunkOrder(t *testing.T) {
	agent := &fakeAgent{id: "assistant", chunks: []runnable.Chunk{
		{Content: "c1"}, {Content: "c2"}, {Content: "c3", Done: true},
	}}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	stream, err := d.DispatchStream(context.Background(), Request{AgentID: "assistant", Message: "Hello", Stream: true})
	require.NoError(t, err)

	var got []runnable.Chunk
	for c := range stream {
		got = append(got, c)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].Content)
	assert.Equal(t, "c2", got[1].Content)
	assert.Equal(t, "c3", got[2].Content)
	assert.True(t, got[2].Done)
}

func TestDispatchStream_ErrorMidStream(t *testing.T) {
	agent := &fakeAgent{
		id:        "assistant",
		chunks:    []runnable.Chunk{{Content: "c1"}},
		streamErr: errors.New("provider timeout"),
	}
	d := newTestDispatcher(t, []runnable.Agent{agent}, nil, nil)

	stream, err := d.DispatchStream(context.Background(), Request{AgentID: "assistant", Message: "Hello", Stream: true})
	require.NoError(t, err)

	var got []runnable.Chunk
	for c := range stream {
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].Content)
	assert.Equal(t, "provider timeout", got[1].Error)
}

func TestDispatchStream_ValidationFailsBeforeStreaming(t *testing.T) {
	d := newTestDispatcher(t, []runnable.Agent{&fakeAgent{id: "assistant"}}, nil, nil)

	stream, err := d.DispatchStream(context.Background(), Request{AgentID: "assistant"})
	require.Error(t, err)
	assert.Nil(t, stream)
	assert.Equal(t, KindMissingMessage, KindOf(err))
}

func TestDispatchStream_CancellationStopsForwarding(t *testing.T) {
	// An agent that streams forever until canceled.
	agent := &slowAgent{id: "assistant"}
	reg, err := runnable.NewRegistry([]runnable.Agent{agent}, nil, nil)
	require.NoError(t, err)
	d := New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := d.DispatchStream(ctx, Request{AgentID: "assistant", Message: "Hello", Stream: true})
	require.NoError(t, err)

	// Consume one chunk, then disconnect.
	<-stream
	cancel()

	select {
	case _, open := <-stream:
		if open {
			// One in-flight chunk may still be delivered; the channel must
			// close right after.
			_, open = <-stream
			assert.False(t, open)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancellation")
	}
}

// slowAgent streams chunks until its context is canceled.
type slowAgent struct {
	id string
}

func (a *slowAgent) ID() string                         { return a.id }
func (a *slowAgent) Knowledge() runnable.KnowledgeStore { return nil }

func (a *slowAgent) Run(ctx context.Context, in runnable.Input) (*runnable.Result, error) {
	return &runnable.Result{Content: "ok"}, nil
}

func (a *slowAgent) RunStream(ctx context.Context, in runnable.Input) (<-chan runnable.Chunk, <-chan error, error) {
	chunks := make(chan runnable.Chunk)
	errs := make(chan error)
	go func() {
		defer close(chunks)
		defer close(errs)
		for i := 0; ; i++ {
			select {
			case chunks <- runnable.Chunk{Content: fmt.Sprintf("chunk-%d", i)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, errs, nil
}
