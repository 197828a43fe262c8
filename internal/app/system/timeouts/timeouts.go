// Package timeouts holds the deadlines applied to database and outbound I/O.
//
// Tiers:
//   - Ping: health checks
//   - Short: single-document reads, the completion state query
//   - Medium: list queries, single review decisions, evaluation submit
//   - Long: initiate, finalize and solo completion (many collections)
//   - Batch: bulk application review
//
// Values are set once from configuration at startup and read lock-free.
package timeouts

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 45 * time.Second
	DefaultBatch  = 2 * time.Minute
)

var (
	ping   atomic.Int64
	short  atomic.Int64
	medium atomic.Int64
	long   atomic.Int64
	batch  atomic.Int64
)

func init() { Reset() }

func Ping() time.Duration   { return time.Duration(ping.Load()) }
func Short() time.Duration  { return time.Duration(short.Load()) }
func Medium() time.Duration { return time.Duration(medium.Load()) }
func Long() time.Duration   { return time.Duration(long.Load()) }
func Batch() time.Duration  { return time.Duration(batch.Load()) }

// Config overrides tiers. Zero fields keep the current value.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Batch  time.Duration
}

// Configure applies the non-zero fields of cfg.
func Configure(cfg Config) {
	set := func(v *atomic.Int64, d time.Duration) {
		if d > 0 {
			v.Store(int64(d))
		}
	}
	set(&ping, cfg.Ping)
	set(&short, cfg.Short)
	set(&medium, cfg.Medium)
	set(&long, cfg.Long)
	set(&batch, cfg.Batch)
}

// Reset restores the defaults.
func Reset() {
	ping.Store(int64(DefaultPing))
	short.Store(int64(DefaultShort))
	medium.Store(int64(DefaultMedium))
	long.Store(int64(DefaultLong))
	batch.Store(int64(DefaultBatch))
}

// Current returns the active values, for startup logging.
func Current() Config {
	return Config{Ping: Ping(), Short: Short(), Medium: Medium(), Long: Long(), Batch: Batch()}
}

// WithTimeout wraps context.WithTimeout and logs a warning on cancel if the
// deadline was what ended the operation.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "finalize completion")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
