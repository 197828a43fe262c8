// internal/app/features/applications/stream.go
package applications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	"github.com/opethaiwoh/favored/internal/app/workflow/membership"
	"go.uber.org/zap"
)

// HeartbeatInterval is how often an idle stream sends a comment line.
var HeartbeatInterval = 30 * time.Second

// ServeStream handles GET /applications/{kind}/{id}/stream. It sends the
// pending applications as an "applications" event on connect and again
// whenever they may have changed, until the client goes away.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	actor, kind, targetID, ok := h.params(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		apierrors.Write(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Only the latest snapshot matters; a slow client skips intermediate ones.
	snapshots := make(chan []membership.View, 1)
	push := func(v []membership.View) {
		for {
			select {
			case snapshots <- v:
				return
			default:
			}
			select {
			case <-snapshots:
			default:
			}
		}
	}

	ctx := r.Context()
	stop, err := h.Svc.Subscribe(ctx, kind, targetID, actor, push)
	if err != nil {
		h.fail(w, r, err, "could not subscribe to applications")
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case views := <-snapshots:
			seq++
			if err := writeEvent(w, seq, "applications", views); err != nil {
				h.Log.Debug("application stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id uint64, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}
