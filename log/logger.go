// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the bot runtime (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
// Passwords never go into fields.
package log

import (
	"io"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Meta identifies the session a log entry belongs to.
type Meta struct {
	UserID     int64
	SessionID  string
	Generation uint64
}

func (m Meta) fields() []zap.Field {
	fields := []zap.Field{zap.Int64("user_id", m.UserID)}
	if m.SessionID != "" {
		fields = append(fields, zap.String("session_id", m.SessionID))
	}
	if m.Generation != 0 {
		fields = append(fields, zap.Uint64("generation", m.Generation))
	}
	return fields
}

// Logger provides structured logging.
// For CLI/debug surfaces, use Sugar() to get a SugaredLogger.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level
	// context holds the fields added by With and Named, so that
	// WithOutput can rebuild the logger without losing them.
	context []zap.Field
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewServiceLogger creates the process logger at the named level
// (debug, info, warn, error). An empty level means info.
func NewServiceLogger(level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return newLogger(os.Stderr, lvl), nil
}

// ParseLevel parses a level name; empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// With returns a child logger stamped with session context.
func (l *Logger) With(meta Meta) *Logger {
	return l.child(meta.fields()...)
}

// Named returns a child logger with a component field.
func (l *Logger) Named(component string) *Logger {
	return l.child(zap.String("component", component))
}

func (l *Logger) child(fields ...zap.Field) *Logger {
	return &Logger{
		zap:     l.zap.With(fields...),
		level:   l.level,
		context: append(slices.Clip(l.context), fields...),
	}
}

// WithOutput returns a copy of the logger writing to w. Level and context
// fields are kept.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return &Logger{
		zap:     zap.New(newCore(w, l.level)).With(l.context...),
		level:   l.level,
		context: l.context,
	}
}

func newCore(w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
}

func newLogger(w io.Writer, level zapcore.Level) *Logger {
	return &Logger{zap: zap.New(newCore(w, level)), level: level}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
