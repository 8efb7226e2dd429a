// Package logging builds the zap logger shared by every birdsync component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgebird/birdsync/internal/config"
)

// New builds a logger that writes to stderr and, when cfg.File is set, to a
// size-rotated log file.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	return build(cfg, zapcore.Lock(os.Stderr), term.IsTerminal(int(os.Stderr.Fd())))
}

func build(cfg config.LogConfig, console zapcore.WriteSyncer, tty bool) (*zap.Logger, error) {
	// An empty level means info.
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder(cfg.Encoding, tty), console, level),
	}

	if cfg.File != "" {
		// Files always get JSON so they stay machine readable.
		cores = append(cores, zapcore.NewCore(encoder("json", false), zapcore.AddSync(rotator(cfg)), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func encoder(encoding string, tty bool) zapcore.Encoder {
	switch strings.ToLower(encoding) {
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig())
	case "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	default:
		if tty {
			return zapcore.NewConsoleEncoder(consoleEncoderConfig())
		}
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return ec
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

func rotator(cfg config.LogConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}
