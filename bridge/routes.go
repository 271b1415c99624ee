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
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// RegisterRoutes registers the bridge routes on a caller-owned gorilla/mux
// router, for mounting the bridge next to existing routes.
func (a *App) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/runs", a.handleRuns).Methods("POST")
	r.HandleFunc("/status", a.handleStatus).Methods("GET")
	r.HandleFunc("/health", a.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Router builds a fresh gorilla/mux router with the bridge routes registered.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	return r
}

// RegisterServeMux registers the bridge routes on a standard library mux,
// for embedding the bridge into an existing net/http server.
func (a *App) RegisterServeMux(m *http.ServeMux) {
	m.HandleFunc("/runs", methodOnly(http.MethodPost, a.handleRuns))
	m.HandleFunc("/status", methodOnly(http.MethodGet, a.handleStatus))
	m.HandleFunc("/health", methodOnly(http.MethodGet, a.handleHealth))
	m.Handle("/metrics", promhttp.Handler())
}

func methodOnly(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

// Handler wraps the router with CORS per the configured origins.
func (a *App) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(a.Router())
}

// Serve registers the app on the platform (best effort) and blocks serving
// HTTP on the configured port.
func (a *App) Serve() error {
	go a.registerOnPlatform()

	a.log.Info("", "", "Bridge listening", map[string]interface{}{
		"port":      a.cfg.Port,
		"agents":    a.registry.AgentCount(),
		"teams":     a.registry.TeamCount(),
		"workflows": a.registry.WorkflowCount(),
	})

	server := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: a.Handler(),
		// No WriteTimeout: streamed runs hold the response open for as long
		// as the runnable produces chunks.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
