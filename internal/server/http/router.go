package http

import (
	"net/http"
	"strings"

	"github.com/AOZdotAG/aoz-explorer/internal/logging"
	"github.com/AOZdotAG/aoz-explorer/internal/observability"
)

// RouterConfig carries the router-level settings.
type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	StaticDir      string
	MetricsEnabled bool
}

// NewRouter wires all endpoints and middleware into one handler.
func NewRouter(apiHandler *APIHandler, metrics *observability.Metrics, config RouterConfig) http.Handler {
	logger := logging.NewComponentLogger("Router")

	mux := http.NewServeMux()

	mux.Handle("/api/agents", routeHandler("/api/agents", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			apiHandler.HandleListAgents(w, r)
		case http.MethodPost:
			apiHandler.HandleCreateAgent(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/api/agents/", routeHandler("/api/agents/:agent_id", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/api/agents/")

		switch {
		case strings.HasSuffix(path, "/tasks"):
			annotateRequestRoute(r, "/api/agents/:agent_id/tasks")
			apiHandler.HandleListAgentTasks(w, r)
		case strings.Contains(path, "/"):
			http.Error(w, "Not found", http.StatusNotFound)
		default:
			apiHandler.HandleGetAgent(w, r)
		}
	})))

	mux.Handle("/api/tasks", routeHandler("/api/tasks", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			apiHandler.HandleCreateTask(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/api/tasks/", routeHandler("/api/tasks/:task_id/execute", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		if !strings.HasSuffix(path, "/execute") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		apiHandler.HandleExecuteTask(w, r)
	})))

	mux.Handle("/api/x402/transactions", routeHandler("/api/x402/transactions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		apiHandler.HandleListTransactions(w, r)
	})))

	mux.Handle("/api/x402/transactions/", routeHandler("/api/x402/transactions/:tx_id", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/api/x402/transactions/")
		if strings.Contains(path, "/") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		apiHandler.HandleGetTransaction(w, r)
	})))

	mux.Handle("/health", routeHandler("/health", http.HandlerFunc(apiHandler.HandleHealthCheck)))

	if config.MetricsEnabled && metrics != nil {
		mux.Handle("/metrics", routeHandler("/metrics", metrics.Handler()))
	}

	if config.StaticDir != "" {
		mux.Handle("/", routeHandler("/", NewSPAHandler(config.StaticDir)))
	}

	var handler http.Handler = mux
	handler = MetricsMiddleware(metrics)(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = CORSMiddleware(config.Environment, config.AllowedOrigins)(handler)

	return handler
}

func routeHandler(route string, handler http.Handler) http.Handler {
	if route == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		annotateRequestRoute(r, route)
		handler.ServeHTTP(w, r)
	})
}
