// Package logging builds the diagnostic logger shared by every component.
// Diagnostics are separate from the run report printed to stdout; only the
// latter is meant for operators reading results, and neither ever carries
// secret material.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

const loggerName = "secretctl"

// ParseLevel maps the --log-level flag onto a zap level. "warning" is accepted
// as an alias for "warn"; an empty level means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}

// New returns the named diagnostic logger at the given level. Debug selects
// the development encoder for readable local runs; every other level uses the
// production encoder.
func New(level string) (logr.Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	opts := crzap.Options{
		Level:       &atomic,
		Development: zapLevel == zapcore.DebugLevel,
	}
	return crzap.New(crzap.UseFlagOptions(&opts)).WithName(loggerName), nil
}
