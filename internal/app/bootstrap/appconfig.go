// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (FAVORED_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// covers ports, TLS, logging and CORS; everything about completion and
// membership lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64

	// Session cookie written by the identity provider
	SessionKey    string
	SessionName   string
	SessionDomain string
	SessionMaxAge time.Duration

	// Notification dispatcher. Empty NotifyBaseURL disables email.
	NotifyBaseURL string
	NotifyAPIKey  string
	NotifyTimeout time.Duration

	// NATS domain events. Empty NATSURL disables publishing.
	NATSURL     string
	NATSSubject string

	// AuditLogWorkflow is one of all, db, log, off.
	AuditLogWorkflow string

	// WatchInterval is the polling period when change streams are unavailable.
	WatchInterval time.Duration

	// ReviewerRole is the platform role that approves completion requests.
	ReviewerRole string

	// Operation deadlines; zero keeps the defaults in system/timeouts.
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutBatch  time.Duration

	// BaseURL prefixes links placed in emails.
	BaseURL string
}
