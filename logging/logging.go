// Package logging builds the zap-backed loggers used by the odometry tools.
package logging

import (
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelNames lists the severity names accepted by ParseLevel, lowest first.
var LevelNames = []string{"NOTSET", "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

var levelsByName = map[string]zapcore.Level{
	"NOTSET":   zapcore.DebugLevel,
	"DEBUG":    zapcore.DebugLevel,
	"INFO":     zapcore.InfoLevel,
	"WARN":     zapcore.WarnLevel,
	"WARNING":  zapcore.WarnLevel,
	"ERROR":    zapcore.ErrorLevel,
	"CRITICAL": zapcore.FatalLevel,
	"FATAL":    zapcore.FatalLevel,
}

// ParseLevel converts a standard severity name (case insensitive) into a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	level, ok := levelsByName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return zapcore.InfoLevel, errors.Errorf("unknown logging level %q, expected one of %s",
			name, strings.Join(LevelNames, ", "))
	}
	return level, nil
}

// NewLoggerConfig returns a new default logger config.
func NewLoggerConfig() zap.Config {
	// from https://github.com/uber-go/zap/blob/2314926ec34c23ee21f3dd4399438469668f8097/config.go#L135
	// but disable stacktraces, use same keys as prod, and color levels.
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger writing level+ logs to stdout.
func NewLogger(name string, level zapcore.Level) (golog.Logger, error) {
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "cannot build logger")
	}
	return logger.Sugar().Named(name), nil
}

// NewLoggerWithFile is NewLogger also writing every entry to the file at path, rotated once it
// reaches 100MB. The returned func closes the file.
func NewLoggerWithFile(name string, level zapcore.Level, path string) (golog.Logger, func() error, error) {
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot build logger")
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 2,
		Compress:   true,
	}
	encoderConfig := cfg.EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(sink), cfg.Level)
	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	return logger.Sugar().Named(name), sink.Close, nil
}
