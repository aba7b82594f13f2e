package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()

			// set by middleware.RequestID
			reqID := middleware.GetReqID(r.Context())

			next.ServeHTTP(sw, r)

			log.Info("http request",
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

var ErrUnauthenticated = errors.New("unauthenticated")

// OwnerResolver maps a request to the authenticated principal. Identity is
// established elsewhere; this service only consumes it.
type OwnerResolver interface {
	ResolveOwner(r *http.Request) (string, error)
}

// HeaderOwnerResolver trusts a header set by an authenticating gateway.
type HeaderOwnerResolver struct {
	Header string
}

func (h HeaderOwnerResolver) ResolveOwner(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(h.Header))
	if owner == "" {
		return "", ErrUnauthenticated
	}
	return owner, nil
}

type ownerKey struct{}

func Authenticate(resolver OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := resolver.ResolveOwner(r)
			if err != nil {
				writeErr(w, http.StatusUnauthorized, "not authorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
		})
	}
}

// OwnerFrom returns the principal stored by Authenticate.
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
