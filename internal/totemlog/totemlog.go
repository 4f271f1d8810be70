// Package totemlog wraps zap into the structured logger shared by every
// component that logs (SR, CH, LC, GR), so none of them reach for
// log.Printf. The Command Bus does not log.
package totemlog

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	// CorrelationIDKey tags every log line written for one connection's
	// lifetime.
	CorrelationIDKey contextKey = "correlation_id"
	// RoomIDKey tags log lines produced while handling a specific room.
	RoomIDKey contextKey = "room_id"
	// NicknameKey tags log lines once a connection has negotiated a name.
	NicknameKey contextKey = "nickname"
)

// Init sets up the global logger. development selects a human-readable,
// colorized console encoder; production selects JSON with ISO8601 times.
func Init(development bool) error {
	var err error
	once.Do(func() {
		var cfg zap.Config
		if development {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		logger, err = cfg.Build(zap.AddCallerSkip(1))
	})
	return err
}

// L returns the global logger, falling back to a development logger if
// Init was never called (as in unit tests).
func L() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

// WithCorrelationID returns a context carrying the given connection
// correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithRoomID returns a context carrying a room id for logging.
func WithRoomID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, RoomIDKey, id)
}

// WithNickname returns a context carrying a client nickname for logging.
func WithNickname(ctx context.Context, nick string) context.Context {
	return context.WithValue(ctx, NicknameKey, nick)
}

func fields(ctx context.Context, extra []zap.Field) []zap.Field {
	if ctx == nil {
		return extra
	}
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		extra = append(extra, zap.String("correlation_id", cid))
	}
	if rid, ok := ctx.Value(RoomIDKey).(int); ok {
		extra = append(extra, zap.Int("room_id", rid))
	}
	if nick, ok := ctx.Value(NicknameKey).(string); ok && nick != "" {
		extra = append(extra, zap.String("nickname", nick))
	}
	return extra
}

// Debug logs at debug level with context fields attached.
func Debug(ctx context.Context, msg string, f ...zap.Field) {
	L().Debug(msg, fields(ctx, f)...)
}

// Info logs at info level with context fields attached.
func Info(ctx context.Context, msg string, f ...zap.Field) {
	L().Info(msg, fields(ctx, f)...)
}

// Warn logs at warn level with context fields attached.
func Warn(ctx context.Context, msg string, f ...zap.Field) {
	L().Warn(msg, fields(ctx, f)...)
}

// Error logs at error level with context fields attached.
func Error(ctx context.Context, msg string, f ...zap.Field) {
	L().Error(msg, fields(ctx, f)...)
}
