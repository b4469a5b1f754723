package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// keepaliveInterval keeps proxies from closing an idle event stream.
const keepaliveInterval = 15 * time.Second

// sseWriter writes Server-Sent Events.
//
// WHAT IS SSE?
// A long-lived HTTP response with Content-Type text/event-stream. Each event
// is a block of "field: value" lines ended by a blank line:
//
//	event: progress
//	data: {"processed":3,"total":10}
//
// Lines starting with ":" are comments; clients ignore them, which makes
// them useful as keepalives.
//
// Writes are serialised with a mutex because the keepalive ticker and the
// event producer run on different goroutines.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newSSEWriter sends the stream headers. After this call the status code is
// fixed at 200; errors must be reported as events.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable nginx buffering

	s := &sseWriter{w: w, rc: http.NewResponseController(w)}
	// The stream outlives the server's WriteTimeout. Writers that cannot
	// change deadlines (httptest.ResponseRecorder) return an error we ignore.
	_ = s.rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	_ = s.rc.Flush()
	return s
}

// Event writes one named event with a JSON payload and flushes it.
func (s *sseWriter) Event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: encoding %s event: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Keepalive writes a comment line.
func (s *sseWriter) Keepalive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}
