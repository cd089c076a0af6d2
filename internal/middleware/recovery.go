package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// PanicHandler writes the error response for a recovered panic
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// Recovery creates panic recovery middleware. The panic handler only runs
// when nothing has been sent yet: a half-written long poll or a hijacked
// socket is left for the server to close.
func Recovery(logger *slog.Logger, handler PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := &ResponseWriter{ResponseWriter: w}

			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(err)
				}

				attrs := []any{
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if id := r.Header.Get(protocol.ConnectionIDHeader); id != "" {
					attrs = append(attrs, slog.String("connection_id", id))
				}
				logger.Error("panic recovered", attrs...)

				if tracked.Status() != 0 {
					return
				}
				handler(w, r, err)
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}

// PlainPanicHandler answers with a bare 500
func PlainPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
