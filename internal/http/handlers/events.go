package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dexploarer/hyper-forge-sub006/internal/queue"
)

// GenerationEvents streams progress for one job as server-sent events. The
// first event is the current snapshot; the stream ends after a terminal one.
func (a *App) GenerationEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	id := chi.URLParam(r, "pipelineId")
	ctx := r.Context()

	// Subscribe before the snapshot so no transition falls in between.
	events, err := a.Progress.SubscribeToProgress(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Generation.Status(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := queue.ProgressEvent{
		PipelineID: id,
		Status:     job.Status,
		Progress:   job.Progress,
		Stages:     job.Stages,
		Error:      job.Error,
		FinalAsset: job.FinalAsset,
		Timestamp:  job.LastUpdatedAt,
	}
	if err := writeEvent(w, snapshot); err != nil {
		return
	}
	flusher.Flush()
	if job.Status.IsTerminal() {
		return
	}

	heartbeat := a.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev queue.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
	return err
}
