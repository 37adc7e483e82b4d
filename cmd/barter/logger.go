package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks     []*charmLog.Logger
	service   *charmLog.Logger
	closeFile func() error
	devLog    string
}

// newRuntimeLogger builds the console sink and, when devLogPath is set, a logfmt file sink.
func newRuntimeLogger(stderr io.Writer, appName, levelName, devLogPath string) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", levelName, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}
	sinkOptions := func(prefix string, formatter charmLog.Formatter) charmLog.Options {
		return charmLog.Options{
			Level:           level,
			Prefix:          prefix,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Formatter:       formatter,
		}
	}

	console := charmLog.NewWithOptions(stderr, sinkOptions(appName, charmLog.TextFormatter))
	logger := &runtimeLogger{
		sinks:   []*charmLog.Logger{console},
		service: console.WithPrefix(appName + "/service"),
	}
	if devLogPath == "" {
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}
	logger.sinks = append(logger.sinks, charmLog.NewWithOptions(logFile, sinkOptions(appName, charmLog.LogfmtFormatter)))
	// Service events reach both sinks as logfmt while a dev file is open.
	logger.service = charmLog.NewWithOptions(io.MultiWriter(stderr, logFile), sinkOptions(appName+"/service", charmLog.LogfmtFormatter))
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// ServiceLogger returns the logger handed to the application service.
func (l *runtimeLogger) ServiceLogger() *charmLog.Logger {
	if l == nil {
		return nil
	}
	return l.service
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// emit writes one event at level to every sink.
func (l *runtimeLogger) emit(level charmLog.Level, msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Log(level, msg, keyvals...)
	}
}

func (l *runtimeLogger) Debug(msg string, keyvals ...any) { l.emit(charmLog.DebugLevel, msg, keyvals...) }
func (l *runtimeLogger) Info(msg string, keyvals ...any) { l.emit(charmLog.InfoLevel, msg, keyvals...) }
func (l *runtimeLogger) Warn(msg string, keyvals ...any) { l.emit(charmLog.WarnLevel, msg, keyvals...) }
func (l *runtimeLogger) Error(msg string, keyvals ...any) { l.emit(charmLog.ErrorLevel, msg, keyvals...) }
