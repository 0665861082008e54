package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger routes GORM output to slog. Queries log at debug, slow queries
// and query errors at warn.
type gormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func newGormLogger(logger *slog.Logger, slowThreshold time.Duration) *gormLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &gormLogger{logger: logger, slowThreshold: slowThreshold}
}

func (g *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return g
}

func (g *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	g.logger.DebugContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	g.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	g.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		g.logger.WarnContext(ctx, "query error",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		sql, rows := fc()
		g.logger.WarnContext(ctx, "slow query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", g.slowThreshold.Milliseconds())
	case g.logger.Enabled(ctx, slog.LevelDebug):
		sql, rows := fc()
		g.logger.DebugContext(ctx, "query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds())
	}
}
