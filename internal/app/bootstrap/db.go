// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	"github.com/opethaiwoh/favored/internal/app/system/events"
	"github.com/opethaiwoh/favored/internal/app/system/indexes"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"github.com/opethaiwoh/favored/internal/app/system/validators"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens MongoDB and, when configured, NATS.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().ApplyURI(appCfg.MongoURI).SetAppName("favored")
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("ping MongoDB: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{MongoClient: client, MongoDatabase: client.Database(appCfg.MongoDatabase)}

	nc, err := events.Connect(appCfg.NATSURL, "favored", logger)
	if err != nil {
		// Events are best effort; the service runs without them.
		logger.Warn("NATS connect failed; events disabled", zap.String("url", appCfg.NATSURL), zap.Error(err))
	} else if nc != nil {
		logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
		deps.NATS = nc
	}
	return deps, nil
}

// EnsureSchema installs collection validators, then the indexes the
// workflows rely on for uniqueness.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}
