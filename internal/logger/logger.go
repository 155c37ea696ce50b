// Package logger hands out per-package loggers and keeps their levels in
// sync with the configured verbosity.
package logger

import (
	"fmt"
	"strings"
	"sync"

	logger "github.com/d2r2/go-logger"
)

var (
	mu         sync.Mutex
	registered []string
	current    = logger.InfoLevel
)

// New returns the log for the given package name, registering it so later
// SetLevel calls apply to it as well.
func New(pkg string) logger.PackageLog {
	mu.Lock()
	registered = append(registered, pkg)
	level := current
	mu.Unlock()
	return logger.NewPackageLogger(pkg, level)
}

// SetLevel applies a named level ("debug", "info", "warn", "error") to all
// registered packages. The i2c package is pinned to info at most: its debug
// output dumps every bus transfer.
func SetLevel(name string) error {
	level, err := parseLevel(name)
	if err != nil {
		return err
	}

	mu.Lock()
	current = level
	pkgs := make([]string, len(registered))
	copy(pkgs, registered)
	mu.Unlock()

	for _, pkg := range pkgs {
		logger.ChangePackageLogLevel(pkg, level)
	}

	i2cLevel := level
	if i2cLevel > logger.InfoLevel {
		i2cLevel = logger.InfoLevel
	}
	logger.ChangePackageLogLevel("i2c", i2cLevel)
	return nil
}

func parseLevel(name string) (logger.LogLevel, error) {
	switch strings.ToLower(name) {
	case "debug":
		return logger.DebugLevel, nil
	case "info", "":
		return logger.InfoLevel, nil
	case "warn", "warning":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return logger.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}
