package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is the database check. *mongo.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

var _ Pinger = (*mongo.Client)(nil)

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB  Pinger
	Log *zap.Logger

	// EventsConnected reports the NATS connection state. Nil means events
	// are not configured.
	EventsConnected func() bool
}

// NewHandler constructs a health Handler.
func NewHandler(db Pinger, eventsConnected func() bool, logger *zap.Logger) *Handler {
	return &Handler{DB: db, Log: logger, EventsConnected: eventsConnected}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Events   string `json:"events,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "events":"connected" }
//
// On DB failure: 503. A lost NATS connection is reported as "degraded" with
// a 200, since workflow transitions still commit without it.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Status: "ok", Database: "connected"}

	if err := h.DB.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.EventsConnected != nil {
		resp.Events = "connected"
		if !h.EventsConnected() {
			resp.Status = "degraded"
			resp.Events = "disconnected"
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
