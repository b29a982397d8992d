// Package logging holds the process-wide zap logger and the per-request
// logger carried in request contexts.
package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

type requestInfo struct {
	id     string
	logger *zap.Logger
}

var (
	global = zap.NewNop()
	// helpers reports the caller of Debug, Info, Warn and Error.
	helpers = global
)

func setGlobal(l *zap.Logger) {
	global = l
	helpers = l.WithOptions(zap.AddCallerSkip(1))
}

// Config selects level, encoding and destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	OutputPath string // stdout, stderr or a file; default stderr
}

// Init replaces the global logger. An unknown level means info.
func Init(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zc.Build()
	if err != nil {
		return err
	}
	setGlobal(logger)
	return nil
}

// InitNop discards all output. Tests call it from init.
func InitNop() {
	setGlobal(zap.NewNop())
}

// Sync flushes buffered entries.
func Sync() error {
	return global.Sync()
}

// WithContext returns the request logger stored by Middleware, or the
// global logger.
func WithContext(ctx context.Context) *zap.Logger {
	if info, ok := ctx.Value(ctxKey{}).(*requestInfo); ok {
		return info.logger
	}
	return global
}

// GetRequestID returns the ID Middleware assigned, or "".
func GetRequestID(ctx context.Context) string {
	if info, ok := ctx.Value(ctxKey{}).(*requestInfo); ok {
		return info.id
	}
	return ""
}

func Debug(msg string, fields ...zap.Field) { helpers.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { helpers.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { helpers.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { helpers.Error(msg, fields...) }

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Middleware tags each request with an ID (the inbound X-Request-ID or a
// new UUID), echoes it, and logs one line when the response is done.
// Ranged requests log the Range header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		info := &requestInfo{id: id, logger: global.With(zap.String("request_id", id))}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, info)))

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		}
		if rng := r.Header.Get("Range"); rng != "" {
			fields = append(fields, zap.String("range", rng))
		}
		info.logger.Info("request completed", fields...)
	})
}
