// Package logger wraps Uber's zap with the surface the service needs: a
// leveled logger built from configuration and HTTP middleware that records
// every request served.
package logger

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// Logger embeds zap.Logger so callers use the zap API directly.
type Logger struct {
	*zap.Logger
}

// newLogger builds a Logger from zap's production defaults. A construction
// error is reported through the standard log package.
func newLogger() *Logger {
	customLog, err := zap.NewProduction()
	if err != nil {
		log.Println(err)
	}
	return &Logger{Logger: customLog}
}

// CreateLogger builds a production Logger at the given level. An unparsable
// level returns the default-configured logger together with the error.
func CreateLogger(level string) (customLog *Logger, err error) {
	customLog = newLogger()
	defer customLog.Sync()

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return customLog, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return customLog, err
	}

	customLog.Logger = zl
	return customLog, nil
}

// WithLogging returns middleware that logs method, path, status, duration
// and response size for every request passing through the router.
func (log *Logger) WithLogging() func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("served",
					zap.String("method", r.Method),
					zap.String("uri", r.URL.Path),
					zap.Int("status", wrapped.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.Int("size", wrapped.BytesWritten()))
			}()
			h.ServeHTTP(wrapped, r)
		}
		return http.HandlerFunc(fn)
	}
}
