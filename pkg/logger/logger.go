package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level             string
	Development       bool
	LogPath           string // directory; empty keeps stdout only
	RotationTimeHours int
	MaxAgeDays        int
}

var (
	mu     sync.RWMutex
	sugar  *zap.SugaredLogger
	closer func() error
)

func init() {
	sugar = newCore(zapcore.DebugLevel, zapcore.AddSync(os.Stdout), true).Sugar()
}

// Init replaces the package logger. It is safe to call once at startup; the
// returned error is only non-nil when the rotating log file cannot be opened.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	var closeFn func() error

	if opts.LogPath != "" {
		if err := os.MkdirAll(opts.LogPath, 0o750); err != nil {
			return err
		}
		rotation := opts.RotationTimeHours
		if rotation <= 0 {
			rotation = 24
		}
		maxAge := opts.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 30
		}

		logFileName := filepath.Join(opts.LogPath, "marketchat.log")
		writer, err := rotatelogs.New(
			logFileName+".%Y%m%d",
			rotatelogs.WithLinkName(logFileName),
			rotatelogs.WithRotationTime(time.Duration(rotation)*time.Hour),
			rotatelogs.WithMaxAge(time.Duration(maxAge)*24*time.Hour),
		)
		if err != nil {
			return err
		}
		sinks = append(sinks, zapcore.AddSync(writer))
		closeFn = writer.Close
	}

	l := newCore(level, zapcore.NewMultiWriteSyncer(sinks...), opts.Development)

	mu.Lock()
	old := closer
	sugar = l.Sugar()
	closer = closeFn
	mu.Unlock()

	if old != nil {
		_ = old()
	}
	return nil
}

func newCore(level zapcore.Level, sink zapcore.WriteSyncer, development bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if development {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	return zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller(), zap.AddCallerSkip(1))
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Info(format string, v ...interface{}) {
	current().Infof(format, v...)
}

func Error(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

func Warn(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	current().Fatalf(format, v...)
}

// With returns a child logger carrying structured fields, e.g. the user and
// connection of a websocket client.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().With(keysAndValues...)
}

// Sync flushes buffered entries and closes the rotating file, if any.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	if closer != nil {
		_ = closer()
		closer = nil
	}
}
