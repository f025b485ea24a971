package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// HTTPMiddleware records request count, latency and error class per route.
// It is a pass-through while no global registry is set.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Global()
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)

		m.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		if class := errorClass(status); class != "" {
			m.APIErrorsTotal.WithLabelValues(class).Inc()
		}
	})
}

// routeLabel prefers the matched chi pattern. Unrouted paths have their
// ID segments collapsed so labels stay bounded.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	segments := strings.Split(r.URL.Path, "/")
	for i, seg := range segments {
		if len(seg) == 36 && uuid.Validate(seg) == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// errorClass buckets failing statuses; successes return ""
func errorClass(status int) string {
	switch {
	case status < 400:
		return ""
	case status >= 500:
		return "server_error"
	}

	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "auth_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusUnprocessableEntity:
		return "render_error"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	return "client_error"
}
