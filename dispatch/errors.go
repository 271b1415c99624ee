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
	"errors"
	"fmt"
)

// Kind classifies a dispatch failure. Resolution and validation kinds are
// detected before any execution; KindExecution wraps failures raised by the
// runnable itself.
type Kind string

const (
	KindAmbiguousTarget     Kind = "ambiguous_target"
	KindMissingTarget       Kind = "missing_target"
	KindNotFound            Kind = "not_found"
	KindMissingMessage      Kind = "missing_message"
	KindMissingInput        Kind = "missing_input"
	KindUnauthenticated     Kind = "unauthenticated"
	KindUnsupportedFileType Kind = "unsupported_file_type"
	KindNoKnowledgeBase     Kind = "no_knowledge_base"
	KindExecution           Kind = "execution"
)

// Error is a classified dispatch failure.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the dispatch error kind of err, or KindExecution when err is
// not a classified dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindExecution
}

func errAmbiguousTarget() *Error {
	return &Error{Kind: KindAmbiguousTarget, Message: "only one of agent_id, team_id or workflow_id can be provided"}
}

func errMissingTarget() *Error {
	return &Error{Kind: KindMissingTarget, Message: "one of agent_id, team_id or workflow_id is required"}
}

func errNotFound(kind, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", kind, id)}
}

func errMissingMessage() *Error {
	return &Error{Kind: KindMissingMessage, Message: "message is required"}
}

func errMissingInput() *Error {
	return &Error{Kind: KindMissingInput, Message: "workflow_input is required"}
}

func errUnsupportedFileType(contentType string) *Error {
	return &Error{Kind: KindUnsupportedFileType, Message: fmt.Sprintf("unsupported file type: %s", contentType)}
}

func errNoKnowledgeBase(agentID string) *Error {
	return &Error{Kind: KindNoKnowledgeBase, Message: fmt.Sprintf("agent %s has no knowledge base configured", agentID)}
}

func errExecution(err error) *Error {
	return &Error{Kind: KindExecution, Message: "run failed", cause: err}
}
