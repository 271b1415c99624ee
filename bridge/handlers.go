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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"axonflow/agentbridge/audit"
	"axonflow/agentbridge/dispatch"
	"axonflow/agentbridge/runnable"
)

// maxUploadBytes bounds the in-memory portion of a multipart upload.
const maxUploadBytes = 32 << 20

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	AppID     string `json:"app_id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Agents    int    `json:"agents"`
	Teams     int    `json:"teams"`
	Workflows int    `json:"workflows"`
}

// handleStatus reports liveness and the registered component counts.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		AppID:     a.appID,
		Name:      a.name,
		Status:    "available",
		Uptime:    time.Since(a.startedAt).Round(time.Second).String(),
		Agents:    a.registry.AgentCount(),
		Teams:     a.registry.TeamCount(),
		Workflows: a.registry.WorkflowCount(),
	})
}

// handleHealth is the readiness probe.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// runParams is the decoded form of one POST /runs request.
type runParams struct {
	req     dispatch.Request
	monitor bool
}

// handleRuns is the universal dispatch endpoint. The target is named by at
// most one of the agent_id, team_id and workflow_id query parameters; the
// body carries message, stream, monitor, workflow_input, session_id, user_id
// and zero or more "files" parts.
func (a *App) handleRuns(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	user, err := a.auth.Authenticate(r)
	if err != nil {
		promRejectedRequests.Inc()
		writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid credentials: %v", err))
		return
	}
	if a.cfg.RequireAuth && user == nil {
		promRejectedRequests.Inc()
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	params, err := a.parseRunRequest(r)
	if err != nil {
		promRejectedRequests.Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.req.UserID == "" && user != nil {
		params.req.UserID = user.ID
	}

	if params.req.Stream {
		a.runStreamed(w, r, requestID, params, start)
		return
	}
	a.runSync(w, r, requestID, params, start)
}

// runSync executes a non-streaming run and writes the terminal result.
func (a *App) runSync(w http.ResponseWriter, r *http.Request, requestID string, params runParams, start time.Time) {
	resp, err := a.dispatcher.Dispatch(r.Context(), params.req)
	if err != nil {
		a.writeDispatchError(w, requestID, params, err, start)
		return
	}

	kind, id := targetOf(resp)
	promRunsTotal.WithLabelValues(string(kind), "completed").Inc()
	promRunDuration.WithLabelValues(string(kind)).Observe(float64(time.Since(start).Milliseconds()))

	a.touchSession(r.Context(), resp.SessionID, params.req.UserID, kind, id)
	a.trail.Record(audit.Entry{
		RequestID:  requestID,
		SessionID:  resp.SessionID,
		UserID:     params.req.UserID,
		TargetKind: string(kind),
		TargetID:   id,
		Status:     "completed",
		Monitor:    params.monitor,
		DurationMS: time.Since(start).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, resp)
}

// runStreamed executes a streaming run, forwarding each chunk as a
// JSON-encoded event on a continuously flushed body. Resolution and
// validation failures still produce a plain JSON error response; once the
// first byte of the stream is written the only failure signal left is a
// terminal error chunk.
func (a *App) runStreamed(w http.ResponseWriter, r *http.Request, requestID string, params runParams, start time.Time) {
	// Derive the session id up front so it can be recorded even though the
	// chunk stream does not carry it.
	dispatch.EnsureSession(&params.req)

	chunks, err := a.dispatcher.DispatchStream(r.Context(), params.req)
	if err != nil {
		a.writeDispatchError(w, requestID, params, err, start)
		return
	}

	kind, id := requestTarget(params.req)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	status := "completed"
	errorMessage := ""
	enc := json.NewEncoder(w)
	for chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			// Client went away; the dispatcher stops on context cancel.
			break
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
		promStreamChunks.Inc()
		if chunk.Error != "" {
			status = "failed"
			errorMessage = chunk.Error
		}
	}

	promRunsTotal.WithLabelValues(string(kind), status).Inc()
	promRunDuration.WithLabelValues(string(kind)).Observe(float64(time.Since(start).Milliseconds()))

	a.touchSession(r.Context(), params.req.SessionID, params.req.UserID, kind, id)
	a.trail.Record(audit.Entry{
		RequestID:    requestID,
		SessionID:    params.req.SessionID,
		UserID:       params.req.UserID,
		TargetKind:   string(kind),
		TargetID:     id,
		Status:       status,
		Streamed:     true,
		Monitor:      params.monitor,
		DurationMS:   time.Since(start).Milliseconds(),
		ErrorMessage: errorMessage,
	})
}

// writeDispatchError maps a dispatch failure onto the HTTP status table and
// records the rejection.
func (a *App) writeDispatchError(w http.ResponseWriter, requestID string, params runParams, err error, start time.Time) {
	kind, id := requestTarget(params.req)
	status := kindToStatus(dispatch.KindOf(err))

	auditStatus := "rejected"
	if status == http.StatusInternalServerError {
		auditStatus = "failed"
		promRunsTotal.WithLabelValues(string(kind), "failed").Inc()
	} else {
		promRejectedRequests.Inc()
	}

	a.trail.Record(audit.Entry{
		RequestID:    requestID,
		SessionID:    params.req.SessionID,
		UserID:       params.req.UserID,
		TargetKind:   string(kind),
		TargetID:     id,
		Status:       auditStatus,
		Streamed:     params.req.Stream,
		Monitor:      params.monitor,
		DurationMS:   time.Since(start).Milliseconds(),
		ErrorMessage: err.Error(),
	})

	writeError(w, status, err.Error())
}

// kindToStatus maps dispatch failure kinds to HTTP status codes.
func kindToStatus(kind dispatch.Kind) int {
	switch kind {
	case dispatch.KindAmbiguousTarget,
		dispatch.KindMissingTarget,
		dispatch.KindMissingMessage,
		dispatch.KindMissingInput,
		dispatch.KindUnsupportedFileType,
		dispatch.KindNoKnowledgeBase:
		return http.StatusBadRequest
	case dispatch.KindUnauthenticated:
		return http.StatusUnauthorized
	case dispatch.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// parseRunRequest decodes query parameters, form fields and file parts into
// a dispatch request. stream defaults to true when absent.
func (a *App) parseRunRequest(r *http.Request) (runParams, error) {
	params := runParams{
		req: dispatch.Request{
			AgentID:    r.URL.Query().Get("agent_id"),
			TeamID:     r.URL.Query().Get("team_id"),
			WorkflowID: r.URL.Query().Get("workflow_id"),
			Stream:     true,
		},
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return params, fmt.Errorf("failed to parse multipart form: %v", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return params, fmt.Errorf("failed to parse form: %v", err)
		}
	}

	params.req.Message = r.FormValue("message")
	params.req.SessionID = r.FormValue("session_id")
	params.req.UserID = r.FormValue("user_id")

	if v := r.FormValue("stream"); v != "" {
		stream, err := strconv.ParseBool(v)
		if err != nil {
			return params, fmt.Errorf("invalid stream value: %s", v)
		}
		params.req.Stream = stream
	}
	if v := r.FormValue("monitor"); v != "" {
		monitor, err := strconv.ParseBool(v)
		if err != nil {
			return params, fmt.Errorf("invalid monitor value: %s", v)
		}
		params.monitor = monitor
	}
	if v := r.FormValue("workflow_input"); v != "" {
		var input map[string]interface{}
		if err := json.Unmarshal([]byte(v), &input); err != nil {
			return params, fmt.Errorf("workflow_input must be a JSON object: %v", err)
		}
		params.req.WorkflowInput = input
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			part, err := header.Open()
			if err != nil {
				return params, fmt.Errorf("failed to read uploaded file %s: %v", header.Filename, err)
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return params, fmt.Errorf("failed to read uploaded file %s: %v", header.Filename, err)
			}
			params.req.Files = append(params.req.Files, dispatch.File{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	return params, nil
}

// targetOf reads the single populated target id off a response.
func targetOf(resp *dispatch.Response) (runnable.Kind, string) {
	switch {
	case resp.AgentID != "":
		return runnable.KindAgent, resp.AgentID
	case resp.TeamID != "":
		return runnable.KindTeam, resp.TeamID
	default:
		return runnable.KindWorkflow, resp.WorkflowID
	}
}

// requestTarget reads the requested target off the raw request. With zero or
// multiple ids set the kind is indeterminate; report the first non-empty one.
func requestTarget(req dispatch.Request) (runnable.Kind, string) {
	switch {
	case req.AgentID != "":
		return runnable.KindAgent, req.AgentID
	case req.TeamID != "":
		return runnable.KindTeam, req.TeamID
	case req.WorkflowID != "":
		return runnable.KindWorkflow, req.WorkflowID
	default:
		return "", ""
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error payload.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
