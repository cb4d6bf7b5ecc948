// Package tracelog writes per-request debug traces for the council pipeline.
//
// Each request gets one JSONL file in a configurable directory. Events capture
// the request boundaries, every stage begin/end with its duration, and every
// model call with its raw response, so a misbehaving run can be replayed from
// its trace alone.
//
// Design constraints:
//   - All Trace methods are nil-safe (no-op on nil receiver) so stages don't
//     need nil checks before every log call.
//   - Registry is the sole owner of JSONL persistence; stages never open files.
//   - Tracing is off unless SAVE_DEBUG_OUTPUTS is set; the pipeline holds a
//     nil *Registry in that case and every call no-ops.
package tracelog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventKind labels a single structured event in the trace.
type EventKind string

const (
	KindRequestBegin EventKind = "request_begin"
	KindRequestEnd   EventKind = "request_end"
	KindStageBegin   EventKind = "stage_begin"
	KindStageEnd     EventKind = "stage_end"
	KindModelCall    EventKind = "model_call"
)

// Event is one JSONL line in the trace.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`

	// request_begin / request_end
	RequestID string `json:"request_id,omitempty"`
	Query     string `json:"query,omitempty"`
	Status    string `json:"status,omitempty"` // "completed" | "failed"
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`

	// stage_begin / stage_end
	Stage string `json:"stage,omitempty"`

	// model_call
	Model    string `json:"model,omitempty"`
	Response string `json:"response,omitempty"`
}

// Trace is a handle for writing structured events for one request.
//
// Expectations:
//   - All methods are nil-safe (no-op when called on nil *Trace)
//   - Concurrent writes are safe (mutex-protected)
type Trace struct {
	requestID string
	started   time.Time
	mu        sync.Mutex
	f         *os.File
	stages    map[string]time.Time // stage name -> begin time
}

// Registry maps request IDs to open Traces. It is the sole authority for
// creating and closing trace files.
//
// Expectations:
//   - Open creates the trace directory if absent
//   - Open writes a request_begin event as the first JSONL line
//   - Close writes request_end with status and elapsed_ms before flushing
//   - All operations no-op on a nil *Registry
type Registry struct {
	dir    string
	mu     sync.Mutex
	traces map[string]*Trace
}

// NewRegistry creates a Registry that writes one JSONL file per request
// under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, traces: make(map[string]*Trace)}
}

// Open creates a new Trace for requestID and writes a request_begin event.
// Returns nil (safe for all Trace methods) when the registry is nil or the
// file cannot be created.
func (r *Registry) Open(requestID, query string) *Trace {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.traces[requestID]; ok {
		return t
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		slog.Error("[TRACE] could not create dir", "dir", r.dir, "error", err)
		return nil
	}
	path := filepath.Join(r.dir, requestID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("[TRACE] could not open trace file", "path", path, "error", err)
		return nil
	}

	t := &Trace{requestID: requestID, started: time.Now(), f: f, stages: make(map[string]time.Time)}
	r.traces[requestID] = t
	t.write(Event{Kind: KindRequestBegin, RequestID: requestID, Query: query})
	return t
}

// Close writes a request_end event, closes the file, and removes the entry.
// Safe to call on a nil *Registry or unknown requestID.
func (r *Registry) Close(requestID, status, errMsg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	t, ok := r.traces[requestID]
	if ok {
		delete(r.traces, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	t.write(Event{
		Kind:      KindRequestEnd,
		RequestID: requestID,
		Status:    status,
		ElapsedMs: time.Since(t.started).Milliseconds(),
		Error:     errMsg,
	})
	t.mu.Lock()
	if t.f != nil {
		_ = t.f.Close()
		t.f = nil
	}
	t.mu.Unlock()
}

// StageBegin records a stage's start and remembers it for StageEnd's duration.
func (t *Trace) StageBegin(stage string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.stages[stage] = time.Now()
	t.mu.Unlock()
	t.write(Event{Kind: KindStageBegin, Stage: stage})
}

// StageEnd records a stage's completion with its wall-clock duration.
func (t *Trace) StageEnd(stage string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	begin, ok := t.stages[stage]
	t.mu.Unlock()
	var elapsed int64
	if ok {
		elapsed = time.Since(begin).Milliseconds()
	}
	t.write(Event{Kind: KindStageEnd, Stage: stage, ElapsedMs: elapsed})
}

// ModelCall records one backend invocation and its raw response.
func (t *Trace) ModelCall(stage, model, response string) {
	if t == nil {
		return
	}
	t.write(Event{Kind: KindModelCall, Stage: stage, Model: model, Response: response})
}

// write serialises one event as a JSONL line. Nil-safe.
func (t *Trace) write(ev Event) {
	if t == nil {
		return
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return
	}
	_, _ = t.f.Write(append(data, '\n'))
}
