package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ZapLogger triển khai Logger dựa trên zap cho môi trường production
type ZapLogger struct {
	zl *zap.Logger
}

func NewZapLogger(level string) (*ZapLogger, error) {
	var config zap.Config
	if level == "debug" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "message"
	config.DisableStacktrace = true

	zl, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{zl: zl}, nil
}

func (l *ZapLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.zl.Info(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Alert(ctx context.Context, format string, args ...interface{}) {
	l.zl.Warn(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.zl.Error(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.zl.Warn(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.zl.Debug(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.zl.Info(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.zl.Error(fmt.Sprintf(format, args...))
}

func (l *ZapLogger) Emergency(ctx context.Context, format string, args ...interface{}) {
	l.zl.Error(fmt.Sprintf(format, args...))
}

// Sync flush các log entry còn trong buffer
func (l *ZapLogger) Sync() error {
	return l.zl.Sync()
}
