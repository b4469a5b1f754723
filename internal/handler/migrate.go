package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sakif/codevault/internal/importer"
	"github.com/sakif/codevault/internal/service"
)

// MigrateHandler streams a legacy-server import over Server-Sent Events.
type MigrateHandler struct {
	svc       *service.MigrationService
	keepalive time.Duration
	logger    *slog.Logger
}

func NewMigrateHandler(svc *service.MigrationService, logger *slog.Logger) *MigrateHandler {
	return &MigrateHandler{svc: svc, keepalive: keepaliveInterval, logger: logger}
}

// HandleMigrate imports every snippet from a legacy server.
//
// HTTP: POST /api/admin/migrate  {"baseUrl": "...", "username": "...", "password": "..."}
// Response: text/event-stream of start, progress, error and done events.
//
// WHY POST FOR A STREAM?
// EventSource only does GET, but the request carries credentials for the
// legacy server and those must not end up in URLs and access logs. The
// client reads the POST response body as a stream instead.
//
// Closing the connection cancels r.Context(), which stops the import loop
// between two ids. The counts reached so far are still audited.
func (h *MigrateHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	var src importer.Source
	if err := decodeJSON(w, r, &src, maxBodyBytes); err != nil {
		writeError(w, err)
		return
	}
	actor := actorFrom(r)
	// Validate before the stream starts, while a JSON error status is
	// still possible.
	if err := h.svc.Check(actor, &src); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	stream := newSSEWriter(w)

	// The keepalive goroutine must be gone before the handler returns:
	// writing to w after that is not allowed.
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := stream.Keepalive(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	emit := func(ev importer.Event) {
		if err := stream.Event(string(ev.Type), ev); err != nil {
			h.logger.Info("migration client disconnected", slog.String("error", err.Error()))
			cancel()
		}
	}

	sum, err := h.svc.Run(ctx, actor, src, emit)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		h.logger.Info("migration cancelled", slog.Int("processed", sum.Processed), slog.Int("total", sum.Total))
	default:
		// The runner already sent an error event describing the failure.
		h.logger.Warn("migration failed", slog.String("error", err.Error()))
	}
}
