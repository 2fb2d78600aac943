package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger routes GORM logs through zap.
type gormLogger struct {
	log           *zap.Logger
	slowThreshold time.Duration
}

// NewGormLogger returns a GORM logger backed by the given zap logger.
func NewGormLogger(logger *zap.Logger) gormlogger.Interface {
	return &gormLogger{
		log:           logger.Named("gorm"),
		slowThreshold: slowQueryThreshold,
	}
}

func (l *gormLogger) LogMode(_ gormlogger.LogLevel) gormlogger.Interface {
	return l // zap decides what is emitted
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	l.log.Info(msg, zap.String("data", fmt.Sprint(data...)))
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	l.log.Warn(msg, zap.String("data", fmt.Sprint(data...)))
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	l.log.Error(msg, zap.String("data", fmt.Sprint(data...)))
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}

	switch {
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Debug("Query returned no rows", fields...)
	case err != nil:
		l.log.Error("Query failed", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold:
		l.log.Warn("Slow query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	default:
		l.log.Debug("Query", fields...)
	}
}
