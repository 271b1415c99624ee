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

// Package audit records a per-run audit trail. Entries are queued in memory
// and written to Postgres in batches; when no database is configured the
// trail degrades to a no-op so the bridge never blocks on auditing.
package audit

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Entry is one audited run.
type Entry struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	TargetKind   string    `json:"target_kind"`
	TargetID     string    `json:"target_id"`
	Status       string    `json:"status"` // "completed", "failed", "rejected"
	Streamed     bool      `json:"streamed"`
	Monitor      bool      `json:"monitor"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

const (
	queueSize     = 10000
	batchSize     = 100
	flushInterval = 5 * time.Second
)

// Trail queues and persists run audit entries.
type Trail struct {
	db       *sql.DB
	queue    chan *Entry
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New connects to Postgres at databaseURL and starts the background writer.
// An empty databaseURL or a failed connection yields a no-op trail.
func New(databaseURL string) *Trail {
	if databaseURL == "" {
		return &Trail{queue: make(chan *Entry, queueSize), shutdown: make(chan struct{})}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Printf("Failed to connect to audit database: %v", err)
		return &Trail{queue: make(chan *Entry, queueSize), shutdown: make(chan struct{})}
	}

	if err := createAuditTable(db); err != nil {
		log.Printf("Failed to create audit table: %v", err)
	}

	return NewWithDB(db)
}

// NewWithDB starts the background writer over an existing connection.
func NewWithDB(db *sql.DB) *Trail {
	t := &Trail{
		db:       db,
		queue:    make(chan *Entry, queueSize),
		shutdown: make(chan struct{}),
	}
	t.wg.Add(1)
	go t.processQueue()
	return t
}

func createAuditTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_audit (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			session_id TEXT,
			user_id TEXT,
			target_kind TEXT NOT NULL,
			target_id TEXT NOT NULL,
			status TEXT NOT NULL,
			streamed BOOLEAN NOT NULL DEFAULT FALSE,
			monitor BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms BIGINT,
			error_message TEXT
		)`)
	return err
}

// Record enqueues an entry. It never blocks; when the queue is full the
// entry is dropped with a log line.
func (t *Trail) Record(e Entry) {
	if t.db == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	select {
	case t.queue <- &e:
	default:
		log.Printf("Audit queue full, dropping entry for %s %s", e.TargetKind, e.TargetID)
	}
}

// processQueue drains the queue into batched database writes.
func (t *Trail) processQueue() {
	defer t.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		t.writeBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-t.queue:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.shutdown:
			// Drain whatever is left before exiting.
			for {
				select {
				case e := <-t.queue:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// writeBatch inserts a batch of entries in one transaction. Failures are
// logged and the batch is dropped; auditing never fails a run.
func (t *Trail) writeBatch(batch []*Entry) {
	if t.db == nil {
		return
	}

	tx, err := t.db.Begin()
	if err != nil {
		log.Printf("Failed to begin audit transaction: %v", err)
		return
	}

	for _, e := range batch {
		_, err := tx.Exec(`
			INSERT INTO run_audit
				(id, request_id, timestamp, session_id, user_id, target_kind, target_id, status, streamed, monitor, duration_ms, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			e.ID, e.RequestID, e.Timestamp, e.SessionID, e.UserID,
			e.TargetKind, e.TargetID, e.Status, e.Streamed, e.Monitor,
			e.DurationMS, e.ErrorMessage,
		)
		if err != nil {
			log.Printf("Failed to insert audit entry %s: %v", e.ID, err)
			_ = tx.Rollback()
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("Failed to commit audit batch: %v", err)
	}
}

// Close flushes pending entries and stops the background writer.
func (t *Trail) Close() {
	if t.db == nil {
		return
	}
	close(t.shutdown)
	t.wg.Wait()
	_ = t.db.Close()
}
