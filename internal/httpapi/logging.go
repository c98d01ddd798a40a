package httpapi

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tosti/internal/telemetry"
)

var (
	requestsTotal   = expvar.NewInt("requests_total")
	requestsErrors  = expvar.NewInt("requests_errors_total")
	requestsByRoute = expvar.NewMap("requests_by_route")
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestFields collects what routing learned about a request so the access
// log line can carry it.
type requestFields struct {
	mu     sync.Mutex
	route  string
	fields []string
}

type requestFieldsKey struct{}

func fieldsFromContext(ctx context.Context) *requestFields {
	fields, _ := ctx.Value(requestFieldsKey{}).(*requestFields)
	return fields
}

func (f *requestFields) set(route string, values []string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.route = route
	f.fields = append(f.fields, values...)
}

func (f *requestFields) String() string {
	if f == nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fields) == 0 {
		return ""
	}
	return " " + strings.Join(f.fields, " ")
}

func (f *requestFields) matched() string {
	if f == nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route
}

// tagRoute runs after the mux has matched: it records the route with its
// shift, player and order ids and the caller on the access log and the
// active span.
func tagRoute(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attrs := telemetry.RouteAttributes(r.Pattern, r.PathValue)
		telemetry.Annotate(r.Context(), attrs...)

		values := make([]string, 0, len(attrs))
		for _, attr := range attrs {
			key := string(attr.Key)
			if !strings.HasPrefix(key, "tosti.") {
				continue
			}
			key = strings.ReplaceAll(strings.TrimPrefix(key, "tosti."), ".", "_")
			values = append(values, fmt.Sprintf("%s=%s", key, attr.Value.Emit()))
		}
		if user := userFromContext(r.Context()); user.Authenticated() {
			values = append(values, fmt.Sprintf("user_id=%d", user.ID))
		}
		fieldsFromContext(r.Context()).set(r.Pattern, values)
		next(w, r)
	}
}

// LoggingMiddleware assigns a request id when the client sent none and logs
// one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		fields := &requestFields{}
		r = r.WithContext(context.WithValue(r.Context(), requestFieldsKey{}, fields))
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)

		requestsTotal.Add(1)
		if writer.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		route := fields.matched()
		if route == "" {
			route = "unmatched"
		}
		requestsByRoute.Add(route, 1)
		log.Printf("request method=%s path=%s route=%q status=%d duration_ms=%d request_id=%s%s",
			r.Method, r.URL.Path, route, writer.status, time.Since(start).Milliseconds(), requestID, fields)
	})
}
