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

// Package bridge exposes pre-built agents, teams and workflows over HTTP.
// It registers a universal run-dispatch endpoint plus status and health
// endpoints, and translates request payloads into dispatcher calls.
package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"axonflow/agentbridge/audit"
	"axonflow/agentbridge/dispatch"
	"axonflow/agentbridge/runnable"
	"axonflow/agentbridge/session"
	"axonflow/agentbridge/shared/logger"
)

// Options configures an App.
type Options struct {
	Agents    []runnable.Agent
	Teams     []runnable.Team
	Workflows []runnable.Workflow

	// AppID identifies this app on the platform; generated when empty.
	AppID       string
	Name        string
	Description string

	Config Config

	// Authenticator overrides the default JWT authenticator built from
	// Config.JWTSecret.
	Authenticator Authenticator
	// Sessions overrides the session store chosen from Config.RedisURL.
	Sessions session.Store
	// Audit overrides the audit trail built from Config.DatabaseURL.
	Audit *audit.Trail
}

// App is one assembled bridge application: a registry of runnables plus the
// HTTP handlers that dispatch against it.
type App struct {
	appID       string
	name        string
	description string
	cfg         Config
	startedAt   time.Time

	registry   *runnable.Registry
	dispatcher *dispatch.Dispatcher
	auth       Authenticator
	sessions   session.Store
	trail      *audit.Trail
	log        *logger.Logger
}

// New assembles an App from the provided runnables. At least one agent, team
// or workflow must be provided.
func New(opts Options) (*App, error) {
	registry, err := runnable.NewRegistry(opts.Agents, opts.Teams, opts.Workflows)
	if err != nil {
		return nil, err
	}

	appID := opts.AppID
	if appID == "" {
		appID = uuid.NewString()
	}

	appLog := logger.New("bridge")

	auth := opts.Authenticator
	if auth == nil {
		auth = NewJWTAuthenticator(opts.Config.JWTSecret)
	}

	sessions := opts.Sessions
	if sessions == nil {
		if opts.Config.RedisURL != "" {
			store, err := session.NewRedisStore(opts.Config.RedisURL, opts.Config.SessionTTL)
			if err != nil {
				// Session continuity is best-effort; fall back to local.
				appLog.Warn("", "", "Redis unavailable, using in-memory sessions", map[string]interface{}{
					"error": err.Error(),
				})
				sessions = session.NewMemoryStore(opts.Config.SessionTTL)
			} else {
				sessions = store
			}
		} else {
			sessions = session.NewMemoryStore(opts.Config.SessionTTL)
		}
	}

	trail := opts.Audit
	if trail == nil {
		trail = audit.New(opts.Config.DatabaseURL)
	}

	return &App{
		appID:       appID,
		name:        opts.Name,
		description: opts.Description,
		cfg:         opts.Config,
		startedAt:   time.Now(),
		registry:    registry,
		dispatcher: dispatch.New(registry, func(o *dispatch.Options) {
			o.Logger = appLog
		}),
		auth:     auth,
		sessions: sessions,
		trail:    trail,
		log:      appLog,
	}, nil
}

// AppID returns the application id.
func (a *App) AppID() string { return a.appID }

// Registry exposes the runnable registry for status reporting.
func (a *App) Registry() *runnable.Registry { return a.registry }

// Close releases the app's background resources.
func (a *App) Close() {
	a.trail.Close()
	if closer, ok := a.sessions.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// touchSession records session activity. Best effort only.
func (a *App) touchSession(ctx context.Context, sessionID, userID string, kind runnable.Kind, targetID string) {
	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	err := a.sessions.Touch(touchCtx, session.Session{
		ID:         sessionID,
		UserID:     userID,
		TargetKind: string(kind),
		TargetID:   targetID,
	})
	if err != nil {
		a.log.Warn(sessionID, "", "Failed to record session", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
