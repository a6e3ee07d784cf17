package handlers

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MySagra/mysagra-sub000/internal/common/logger"
	"github.com/MySagra/mysagra-sub000/internal/domain"
)

const (
	headerRequestID = "X-Request-ID"
	headerActor     = "X-Actor"
)

type ctxKey int

const loggerKey ctxKey = iota

func requestLogger(ctx context.Context) *logger.Logger {
	if lg, ok := ctx.Value(loggerKey).(*logger.Logger); ok {
		return lg
	}
	return logger.Nop()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status, r.wrote = code, true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status, r.wrote = http.StatusOK, true
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket upgrader take the connection through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status, r.wrote = http.StatusSwitchingProtocols, true
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// withRequestContext stamps a request id, the caller identity and a request
// scoped logger on the context, logs one line per request and turns panics
// into a 500.
func withRequestContext(lg *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		rl := lg.WithRequestID(id)

		ctx := context.WithValue(r.Context(), loggerKey, rl)
		ctx = domain.WithActor(ctx, r.Header.Get(headerActor))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				rl.Error("http_panic", fmt.Errorf("%v", v), map[string]any{"path": r.URL.Path})
				if !rec.wrote {
					writeProblem(rec, http.StatusInternalServerError, "internal", "internal error")
				}
			}
			rl.Info("http_request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}()
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
