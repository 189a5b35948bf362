// Package logging builds the logr.Logger shared by the CLI, the pipeline, and
// the HTTP trigger surface.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Option tweaks the zap options before the logger is built.
type Option func(*crzap.Options)

// WithJSON switches the encoder to JSON lines (used by `repodeploy serve`).
func WithJSON() Option {
	return func(o *crzap.Options) {
		crzap.JSONEncoder()(o)
	}
}

// WithWriter redirects log output.
func WithWriter(w io.Writer) Option {
	return func(o *crzap.Options) {
		if w != nil {
			o.DestWriter = w
		}
	}
}

// New returns a controller-runtime logger configured with the given level string.
func New(level string, opts ...Option) (logr.Logger, error) {
	zapLevel, development, err := parseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}
	o := crzap.Options{Development: development}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	o.Level = &atomic
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return crzap.New(crzap.UseFlagOptions(&o)), nil
}

func parseLevel(level string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, true, nil
	case "info", "":
		return zapcore.InfoLevel, false, nil
	case "warn", "warning":
		return zapcore.WarnLevel, false, nil
	case "error":
		return zapcore.ErrorLevel, false, nil
	default:
		return zapcore.InfoLevel, false, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}
