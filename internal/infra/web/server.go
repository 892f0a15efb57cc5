package web

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"ai-credit-metering/internal/usecase"
)

// Server is the operator-facing admin API. It runs on a separate port from
// the account-facing surface and is gated by a static bearer key.
type Server struct {
	planUC      usecase.PlanUseCase
	lifecycleUC usecase.LifecycleUseCase
	apiKey      string
	log         *zerolog.Logger
}

func NewServer(
	planUC usecase.PlanUseCase,
	lifecycleUC usecase.LifecycleUseCase,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	adminLog := logger.With().Str("component", "AdminServer").Logger()
	return &Server{
		planUC:      planUC,
		lifecycleUC: lifecycleUC,
		apiKey:      apiKey,
		log:         &adminLog,
	}
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	plansRouter := s.authMiddleware(s.plansRouter())
	mux.Handle("/admin/v1/plans", plansRouter)
	mux.Handle("/admin/v1/plans/", plansRouter)

	accountsRouter := s.authMiddleware(s.accountsRouter())
	mux.Handle("/admin/v1/accounts/", accountsRouter)
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// plansRouter acts as a sub-router for /admin/v1/plans
func (s *Server) plansRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/admin/v1/plans")
		path = strings.Trim(path, "/")

		// Route /admin/v1/plans (no ID)
		if path == "" {
			switch r.Method {
			case http.MethodGet:
				plansListHandler(s.planUC)(w, r)
			case http.MethodPost:
				plansCreateHandler(s.planUC)(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		// Route /admin/v1/plans/{id}
		switch r.Method {
		case http.MethodGet:
			planGetHandler(s.planUC, path)(w, r)
		case http.MethodDelete:
			planDeactivateHandler(s.planUC, path)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// accountsRouter serves /admin/v1/accounts/{id}/entitlement and .../usage
func (s *Server) accountsRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/admin/v1/accounts/")
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) != 2 || parts[0] == "" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "entitlement":
			accountEntitlementHandler(s.lifecycleUC, parts[0])(w, r)
		case "usage":
			accountUsageHandler(s.lifecycleUC, parts[0])(w, r)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})
}
