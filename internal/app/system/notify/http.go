package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opethaiwoh/favored/internal/app/system/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of a dispatcher response is read.
const maxResponseBytes = 1 << 20

type requestBody struct {
	Data      any       `json:"data"`
	Recipient Recipient `json:"recipient"`
	Context   Context   `json:"context"`
}

type responseBody struct {
	Success bool              `json:"success"`
	Results []json.RawMessage `json:"results,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// HTTPDispatcher posts each message to {baseURL}/{kind}.
type HTTPDispatcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
	tracer  trace.Tracer
}

// NewHTTPDispatcher builds a dispatcher. timeout bounds each call.
func NewHTTPDispatcher(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log.With(zap.String("component", "notify")),
		tracer:  otel.Tracer("github.com/opethaiwoh/favored/internal/app/system/notify"),
	}
}

// Send posts msg and interprets the {success, results, error} reply.
// Non-2xx statuses and success=false are failures.
func (d *HTTPDispatcher) Send(ctx context.Context, msg Message) Result {
	ctx, span := d.tracer.Start(ctx, "notify.send", trace.WithAttributes(
		attribute.String("notify.kind", msg.Kind),
	))
	defer span.End()

	start := time.Now()
	res := d.send(ctx, msg)
	metrics.DispatchLatency().WithLabelValues(msg.Kind).Observe(time.Since(start).Seconds())

	if res.OK {
		metrics.Dispatches().WithLabelValues(msg.Kind, metrics.OutcomeOK).Inc()
		return res
	}
	metrics.Dispatches().WithLabelValues(msg.Kind, metrics.OutcomeFailed).Inc()
	span.SetStatus(codes.Error, res.Error)
	d.log.Warn("notification dispatch failed",
		zap.String("kind", msg.Kind),
		zap.String("recipient", msg.Recipient.Email),
		zap.String("error", res.Error))
	return res
}

func (d *HTTPDispatcher) send(ctx context.Context, msg Message) Result {
	if strings.TrimSpace(msg.Recipient.Email) == "" {
		return failed(msg, "recipient email is empty")
	}

	body, err := json.Marshal(requestBody{Data: msg.Data, Recipient: msg.Recipient, Context: msg.Context})
	if err != nil {
		return failed(msg, "encode request: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/"+msg.Kind, bytes.NewReader(body))
	if err != nil {
		return failed(msg, "build request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return failed(msg, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return failed(msg, "read response: "+err.Error())
	}

	var out responseBody
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := fmt.Sprintf("dispatcher returned %d", resp.StatusCode)
		if decodeErr == nil && out.Error != "" {
			reason += ": " + out.Error
		}
		return failed(msg, reason)
	}
	if decodeErr != nil {
		return failed(msg, "decode response: "+decodeErr.Error())
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "dispatcher reported failure"
		}
		return failed(msg, reason)
	}
	return Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, OK: true, Results: out.Results}
}
