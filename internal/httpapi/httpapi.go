package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"persediaan/backend/internal/apperr"
	"persediaan/backend/internal/domain"
	"persediaan/backend/internal/logger"
	"persediaan/backend/internal/metrics"
	"persediaan/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *logger.Logger
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

type Options struct {
	AllowedOrigin string
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		gatherer:      opts.Gatherer,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.requestID)
	r.Use(a.recoverer)
	r.Use(a.logging)
	if a.allowedOrigin != "" {
		r.Use(a.corsPolicy())
	}
	r.Use(a.secure)

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/items", a.handleListItems)
			r.Post("/items", a.handleCreateItem)
			r.Get("/items/{id}", a.handleGetItem)
			r.Get("/items/{id}/ledger", a.handleItemLedger)
			r.Get("/items/{id}/verify", a.handleVerifyItem)

			r.Get("/employees", a.handleListEmployees)
			r.Get("/employees/{id}", a.handleGetEmployee)

			r.Get("/users", a.handleListUsers)
			r.Post("/users", a.handleCreateUser)

			r.Get("/requests", a.handleListRequests)
			r.Post("/requests", a.handleCreateRequest)
			r.Get("/requests/{id}", a.handleGetRequest)
			r.Put("/requests/{id}", a.handleUpdateRequest)
			r.Delete("/requests/{id}", a.handleDeleteRequest)
			r.Post("/requests/{id}/cancel", a.handleCancelRequest)

			r.Get("/distribution-orders", a.handleListOrders)
			r.Post("/distribution-orders", a.handleCreateOrder)
			r.Get("/distribution-orders/{id}", a.handleGetOrder)
			r.Delete("/distribution-orders/{id}", a.handleDeleteOrder)
			r.Post("/distribution-orders/{id}/cancel", a.handleCancelOrder)

			r.Get("/outbound-handovers", a.handleListOutbound)
			r.Post("/outbound-handovers", a.handleCreateOutbound)
			r.Get("/outbound-handovers/{id}", a.handleGetOutbound)
			r.Delete("/outbound-handovers/{id}", a.handleDeleteOutbound)

			r.Get("/inbound-handovers", a.handleListInbound)
			r.Post("/inbound-handovers", a.handleCreateInbound)
			r.Get("/inbound-handovers/{id}", a.handleGetInbound)
			r.Put("/inbound-handovers/{id}", a.handleUpdateInbound)
			r.Delete("/inbound-handovers/{id}", a.handleDeleteInbound)

			r.Get("/stock-opname", a.handleListOpname)
			r.Post("/stock-opname", a.handleCreateOpname)
			r.Get("/stock-opname/{id}", a.handleGetOpname)
			r.Put("/stock-opname/{id}/lines/{itemID}", a.handleUpdateOpnameLine)
			r.Post("/stock-opname/{id}/finalize", a.handleFinalizeOpname)
			r.Post("/stock-opname/{id}/cancel", a.handleCancelOpname)

			r.Get("/restock-suggestions", a.handleRestockSuggestions)
			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, apperr.New(apperr.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorPayload{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"}})
	})
	return r
}

// requireAuth only authenticates. Role checks live in the service so every
// caller of an operation gets the same answer.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = a.logger.WithActor(ctx, actor.Username, actor.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorPayload{Code: "RATE_LIMITED", Message: "too many login attempts"}})
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.logger.Warn(a.logger.WithField(r.Context(), "username", req.Username), "login rejected")
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
