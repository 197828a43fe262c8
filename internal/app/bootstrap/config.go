// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/opethaiwoh/favored/internal/app/system/auditlog"
	"github.com/opethaiwoh/favored/internal/app/system/watch"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.uber.org/zap"
)

// devSessionKey is the built-in signing key. It is refused in prod.
const devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for Favored.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, notify_base_url, etc.
//   - Environment variables: FAVORED_MONGO_URI, FAVORED_NOTIFY_BASE_URL, etc.
//   - Command-line flags: --mongo_uri, --notify_base_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "favored", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},

	{Name: "session_key", Default: devSessionKey, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "favored-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},

	// Notification dispatcher
	{Name: "notify_base_url", Default: "", Desc: "Notification dispatcher base URL; blank disables email"},
	{Name: "notify_api_key", Default: "", Desc: "Notification dispatcher API key"},
	{Name: "notify_timeout", Default: "10s", Desc: "Timeout for one dispatcher call"},

	// Domain events
	{Name: "nats_url", Default: "", Desc: "NATS server URL; blank disables event publishing"},
	{Name: "nats_subject", Default: "favored", Desc: "Subject prefix for published events"},

	{Name: "audit_log_workflow", Default: "all", Desc: "Workflow audit logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "watch_interval", Default: "5s", Desc: "Polling interval for live application lists without change streams"},
	{Name: "reviewer_role", Default: models.RoleAdmin, Desc: "Role that reviews completion requests"},

	{Name: "timeout_short", Default: "", Desc: "Deadline for single-document operations (blank keeps default)"},
	{Name: "timeout_medium", Default: "", Desc: "Deadline for lists and single decisions (blank keeps default)"},
	{Name: "timeout_long", Default: "", Desc: "Deadline for initiate, finalize and solo completion (blank keeps default)"},
	{Name: "timeout_batch", Default: "", Desc: "Deadline for bulk review (blank keeps default)"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for links in emails"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges, with precedence flags > env >
// files > defaults:
//   - .env files
//   - config.yaml/json/toml files
//   - environment variables (WAFFLE_* for core, FAVORED_* for app)
//   - command-line flags
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "FAVORED", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		NotifyBaseURL: strings.TrimSpace(appValues.String("notify_base_url")),
		NotifyAPIKey:  appValues.String("notify_api_key"),
		NotifyTimeout: appValues.Duration("notify_timeout", 10*time.Second),

		NATSURL:     strings.TrimSpace(appValues.String("nats_url")),
		NATSSubject: appValues.String("nats_subject"),

		AuditLogWorkflow: strings.ToLower(strings.TrimSpace(appValues.String("audit_log_workflow"))),
		WatchInterval:    appValues.Duration("watch_interval", watch.DefaultInterval),
		ReviewerRole:     strings.ToLower(strings.TrimSpace(appValues.String("reviewer_role"))),

		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),
		TimeoutLong:   appValues.Duration("timeout_long", 0),
		TimeoutBatch:  appValues.Duration("timeout_batch", 0),

		BaseURL: appValues.String("base_url"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig rejects configuration that would fail later: a malformed
// MongoDB URI, a dispatcher URL that is not absolute http(s), an unknown
// audit destination, an empty reviewer role, or the dev session key in prod.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if coreCfg != nil && coreCfg.Env == "prod" && (appCfg.SessionKey == "" || appCfg.SessionKey == devSessionKey) {
		return fmt.Errorf("session_key must be set in prod")
	}
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateHTTPURL(appCfg.NotifyBaseURL); err != nil {
		return fmt.Errorf("invalid notify_base_url: %w", err)
	}
	switch appCfg.AuditLogWorkflow {
	case auditlog.DestAll, auditlog.DestDB, auditlog.DestLog, auditlog.DestOff:
	default:
		return fmt.Errorf("audit_log_workflow must be all, db, log or off; got %q", appCfg.AuditLogWorkflow)
	}
	if appCfg.ReviewerRole == "" {
		return fmt.Errorf("reviewer_role must not be empty")
	}
	if appCfg.NotifyBaseURL == "" {
		logger.Warn("notify_base_url not set; emails will not be sent, in-app notifications only")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}
