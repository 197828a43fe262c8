// Package notify sends templated email through the platform's notification
// dispatcher.
//
// Sending is best effort. Port.Send never returns an error: every failure is
// folded into Result so workflow code can count successes and failures
// without special-casing transport problems. Callers persist their state
// change before sending and never repeat it when sending fails.
package notify

import (
	"context"
	"encoding/json"
)

// Dispatcher endpoints, one per notification kind.
const (
	KindBadgeAwarded        = "badge-awarded"
	KindCompletionApproved  = "completion-approved"
	KindCompletionRejected  = "completion-rejected"
	KindApplicationReceived = "application-received"
	KindApplicationApproved = "application-approved"
	KindApplicationRejected = "application-rejected"
)

// Recipient is who the email goes to.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

// Context describes who triggered the notification and where.
type Context struct {
	ActorEmail string `json:"actorEmail,omitempty"`
	ActorName  string `json:"actorName,omitempty"`
	Source     string `json:"source"`
	URL        string `json:"url,omitempty"`
}

// Message is one notification. Data is the subject of the notification
// (badge, application, project) and is encoded as-is.
type Message struct {
	Kind      string
	Data      any
	Recipient Recipient
	Context   Context
}

// Result is the outcome of one Send.
type Result struct {
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	OK        bool              `json:"ok"`
	Skipped   bool              `json:"skipped,omitempty"`
	Error     string            `json:"error,omitempty"`
	Results   []json.RawMessage `json:"-"`
}

// Port sends a notification and reports the outcome.
type Port interface {
	Send(ctx context.Context, msg Message) Result
}

// Disabled is the Result error reported by Nop.
const Disabled = "email disabled"

// Nop sends nothing and reports every message as skipped. Used when no
// dispatcher is configured.
type Nop struct{}

func (Nop) Send(_ context.Context, msg Message) Result {
	return Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, Skipped: true, Error: Disabled}
}

func failed(msg Message, reason string) Result {
	return Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, Error: reason}
}
