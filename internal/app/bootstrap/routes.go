// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	applicationsfeature "github.com/opethaiwoh/favored/internal/app/features/applications"
	certificatesfeature "github.com/opethaiwoh/favored/internal/app/features/certificates"
	completionfeature "github.com/opethaiwoh/favored/internal/app/features/completion"
	errorsfeature "github.com/opethaiwoh/favored/internal/app/features/errors"
	healthfeature "github.com/opethaiwoh/favored/internal/app/features/health"
	mefeature "github.com/opethaiwoh/favored/internal/app/features/me"
	reviewsfeature "github.com/opethaiwoh/favored/internal/app/features/reviews"
	applicationstore "github.com/opethaiwoh/favored/internal/app/store/applications"
	"github.com/opethaiwoh/favored/internal/app/store/audit"
	badgestore "github.com/opethaiwoh/favored/internal/app/store/badges"
	certificatestore "github.com/opethaiwoh/favored/internal/app/store/certificates"
	completionstore "github.com/opethaiwoh/favored/internal/app/store/completions"
	groupmemberstore "github.com/opethaiwoh/favored/internal/app/store/groupmembers"
	groupstore "github.com/opethaiwoh/favored/internal/app/store/groups"
	listingstore "github.com/opethaiwoh/favored/internal/app/store/listings"
	notificationstore "github.com/opethaiwoh/favored/internal/app/store/notifications"
	targetstore "github.com/opethaiwoh/favored/internal/app/store/targets"
	"github.com/opethaiwoh/favored/internal/app/system/auditlog"
	"github.com/opethaiwoh/favored/internal/app/system/auth"
	"github.com/opethaiwoh/favored/internal/app/system/events"
	"github.com/opethaiwoh/favored/internal/app/system/metrics"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/app/system/ratelimit"
	"github.com/opethaiwoh/favored/internal/app/system/txn"
	"github.com/opethaiwoh/favored/internal/app/system/watch"
	"github.com/opethaiwoh/favored/internal/app/workflow/completion"
	"github.com/opethaiwoh/favored/internal/app/workflow/membership"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. It builds the stores and both workflow
// services, then mounts:
//   - /health and /metrics for operators
//   - /groups/{id}/completion for the completion workflow
//   - /completions for the reviewer queue and request history
//   - /applications for join requests and review
//   - /me for badges, certificates, applications and notifications
//   - /certificates/{number} for public certificate checks
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	errLog := errorsfeature.NewErrorLogger(logger)
	db := deps.MongoDatabase

	var dispatcher notify.Port = notify.Nop{}
	if appCfg.NotifyBaseURL != "" {
		dispatcher = notify.NewHTTPDispatcher(appCfg.NotifyBaseURL, appCfg.NotifyAPIKey, appCfg.NotifyTimeout, logger)
	}

	var publisher events.Publisher = events.Nop{}
	if deps.NATS != nil {
		publisher = events.NewNATSPublisher(deps.NATS, appCfg.NATSSubject, logger)
	}

	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Workflow: appCfg.AuditLogWorkflow})
	notifications := notificationstore.New(db)
	applications := applicationstore.New(db)

	completionSvc := completion.New(completion.Deps{
		Groups:        groupstore.New(db),
		Members:       groupmemberstore.New(db),
		Requests:      completionstore.New(db),
		Badges:        badgestore.New(db),
		Certificates:  certificatestore.New(db),
		Notifications: notifications,
		Listings:      listingstore.New(db),
		Tx:            txn.Runner{Client: deps.MongoClient},
		Notify:        dispatcher,
		Events:        publisher,
		Audit:         auditLog,
		Log:           logger,
		ReviewerRole:  appCfg.ReviewerRole,
		BaseURL:       appCfg.BaseURL,
	})

	watchFn, err := applicationWatchers(applications, appCfg, logger)
	if err != nil {
		return nil, err
	}
	membershipSvc := membership.New(membership.Deps{
		Applications:  applications,
		Targets:       targetstore.New(db),
		Notifications: notifications,
		Notify:        dispatcher,
		Events:        publisher,
		Audit:         auditLog,
		Watch:         watchFn,
		Log:           logger,
		BaseURL:       appCfg.BaseURL,
	})

	errorsHandler := errorsfeature.NewHandler()
	r := chi.NewRouter()
	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	healthHandler := healthfeature.NewHandler(deps.MongoClient, natsConnected(deps), logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", metrics.Handler())

	completionHandler := completionfeature.NewHandler(completionSvc, errLog, logger)
	r.Mount("/groups/{id}/completion", completionfeature.Routes(completionHandler, sessionMgr))

	reviewsHandler := reviewsfeature.NewHandler(db, errLog, logger)
	r.Mount("/completions", reviewsfeature.Routes(reviewsHandler, sessionMgr, completionSvc.ReviewerRoles()...))

	applicationsHandler := applicationsfeature.NewHandler(membershipSvc, ratelimit.NewJoinLimiter(), errLog, logger)
	r.Mount("/applications", applicationsfeature.Routes(applicationsHandler, sessionMgr))

	meHandler := mefeature.NewHandler(db, errLog, logger)
	r.Mount("/me", mefeature.Routes(meHandler, sessionMgr))

	certificatesHandler := certificatesfeature.NewHandler(db, errLog, logger)
	r.Mount("/certificates", certificatesfeature.Routes(certificatesHandler))

	return r, nil
}

// applicationWatchers builds one watcher per application collection and
// returns a WatchFunc that routes subscriptions by kind.
func applicationWatchers(apps *applicationstore.Store, appCfg AppConfig, logger *zap.Logger) (membership.WatchFunc, error) {
	watchers := map[string]*watch.Watcher{}
	for _, kind := range []string{models.ApplicationKindEventGroup, models.ApplicationKindProject} {
		coll, err := apps.Collection(kind)
		if err != nil {
			return nil, err
		}
		watchers[kind] = watch.New(coll, appCfg.WatchInterval, logger)
	}
	return func(kind string, filter bson.M, refresh watch.Refresh) (func(), error) {
		w, ok := watchers[kind]
		if !ok {
			return nil, fmt.Errorf("no watcher for application kind %q", kind)
		}
		sub := w.Subscribe(filter, refresh)
		return sub.Stop, nil
	}, nil
}

func natsConnected(deps DBDeps) func() bool {
	if deps.NATS == nil {
		return nil
	}
	return deps.NATS.IsConnected
}
