// Package utils provides shared utility functions for both services
package utils

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// Logger wraps logrus.Logger with gateway-specific helpers
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new logger instance with specified configuration
func NewLogger(config *types.LoggingConfig) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	} else if config.Output != "" && config.Output != "stdout" {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logger.WithError(err).Error("Failed to open log file, falling back to stdout")
			output = os.Stdout
		} else {
			output = file
		}
	}
	logger.SetOutput(output)

	return &Logger{Logger: logger}
}

// WithRequestID adds request ID to log context
func (l *Logger) WithRequestID(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

// WithBackend adds the backend label to log context
func (l *Logger) WithBackend(backend string) *logrus.Entry {
	return l.WithField("backend", backend)
}

// WithTier adds the complexity tier to log context
func (l *Logger) WithTier(tier types.ComplexityTier) *logrus.Entry {
	return l.WithField("tier", string(tier))
}

// LogBackendCall logs the start of a backend invocation
func (l *Logger) LogBackendCall(backend, model, requestID string) {
	l.WithFields(logrus.Fields{
		"type":       "backend_call",
		"request_id": requestID,
		"backend":    backend,
		"model":      model,
	}).Info("Backend call started")
}

// LogBackendResponse logs the outcome of a backend invocation
func (l *Logger) LogBackendResponse(backend, requestID string, duration time.Duration, err error) {
	entry := l.WithFields(logrus.Fields{
		"type":        "backend_response",
		"request_id":  requestID,
		"backend":     backend,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Warn("Backend call failed")
	} else {
		entry.Info("Backend call completed")
	}
}

// LogAuthFailure logs authentication failures
func (l *Logger) LogAuthFailure(reason, clientIP, userAgent string) {
	l.WithFields(logrus.Fields{
		"type":            "auth_failure",
		"reason":          reason,
		"client_ip":       clientIP,
		"http_user_agent": userAgent,
	}).Warn("Authentication failed")
}

// LogFailoverTransition logs an edge-triggered failover state change
func (l *Logger) LogFailoverTransition(event string, failures int) {
	l.WithFields(logrus.Fields{
		"type":                 "failover_transition",
		"event":                event,
		"consecutive_failures": failures,
	}).Warn("Failover state changed")
}

// LogCacheError logs a cache backend error that was absorbed as a miss
func (l *Logger) LogCacheError(op string, err error) {
	l.WithFields(logrus.Fields{
		"type":      "cache_error",
		"operation": op,
	}).WithError(err).Warn("Cache unavailable, treating as miss")
}
