// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"github.com/opethaiwoh/favored/internal/app/system/metrics"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Startup applies process-wide settings once backends are up and before the
// handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Batch:  appCfg.TimeoutBatch,
	})
	cur := timeouts.Current()
	logger.Info("operation timeouts",
		zap.Duration("short", cur.Short),
		zap.Duration("medium", cur.Medium),
		zap.Duration("long", cur.Long),
		zap.Duration("batch", cur.Batch))

	metrics.RegisterMetrics()
	return nil
}
