package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AOZdotAG/aoz-explorer/internal/logging"
	"github.com/AOZdotAG/aoz-explorer/internal/observability"
	"github.com/AOZdotAG/aoz-explorer/internal/x402"
)

type contextKey string

const routeContextKey contextKey = "route"

func annotateRequestRoute(r *http.Request, route string) {
	*r = *r.WithContext(context.WithValue(r.Context(), routeContextKey, route))
}

func routeFromContext(ctx context.Context) string {
	route, _ := ctx.Value(routeContextKey).(string)
	return route
}

// CORSMiddleware handles CORS headers. Outside production every origin is
// allowed; in production only the configured origins are.
func CORSMiddleware(environment string, allowedOrigins []string) func(http.Handler) http.Handler {
	env := strings.ToLower(strings.TrimSpace(environment))
	isDev := env != "production"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}

			if origin != "" && (allowed || isDev) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if allowed {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+WalletHeader+", "+x402.PaymentHeader)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs incoming requests.
func LoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware records per-request counters and latency under the
// annotated route.
func MetricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			route := routeFromContext(r.Context())
			if route == "" {
				route = r.URL.Path
			}
			metrics.RecordHTTPRequest(r.Context(), route, rec.status, time.Since(start))
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
