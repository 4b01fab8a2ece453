// Package logger provides structured logging for the wallet layer.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is "json" or "console". Defaults to json.
	Format string
	// Service is attached to every entry as the service field.
	Service string
}

// Logger wraps a zerolog.Logger with the helpers used across the codebase.
type Logger struct {
	zl zerolog.Logger
}

// New constructs a logger from config.
func New(cfg LoggingConfig) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Service != "" {
		zl = zl.With().Str("service", cfg.Service).Logger()
	}
	return &Logger{zl: zl}
}

// NewDefault returns a JSON logger at info level tagged with the service name.
func NewDefault(service string) *Logger {
	return New(LoggingConfig{Service: service})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput redirects all subsequent output. Used by tests and examples.
func (l *Logger) SetOutput(w io.Writer) {
	l.zl = l.zl.Output(w)
}

// WithField returns a logger with an extra field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a logger with a set of fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Fatalf logs and exits. Reserved for process bootstrap failures.
func (l *Logger) Fatalf(format string, args ...interface{}) { l.zl.Fatal().Msgf(format, args...) }

// LogSecurityEvent records a security-relevant event with a severity marker.
// Rate limit rejections, duplicate suppressions and malformed-address
// attempts all flow through here so they can be grepped as one stream.
func (l *Logger) LogSecurityEvent(event, severity string, details map[string]interface{}) {
	evt := l.zl.Warn()
	if strings.EqualFold(severity, "info") {
		evt = l.zl.Info()
	}
	for k, v := range details {
		evt = evt.Interface(k, v)
	}
	evt.Str("security_event", event).Str("severity", severity).Msg(fmt.Sprintf("security: %s", event))
}

// LogRequest records one handled HTTP request.
func (l *Logger) LogRequest(method, path, remoteAddr string, status int, duration time.Duration) {
	l.zl.Info().
		Str("method", method).
		Str("path", path).
		Str("remote_addr", remoteAddr).
		Int("status", status).
		Dur("duration", duration).
		Msg("request handled")
}
