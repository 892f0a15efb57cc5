package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-credit-metering/internal/config"
	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/credit"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/infra/logging"
	"ai-credit-metering/internal/usecase"
)

// signatureHeader carries the gateway's HMAC over the raw webhook body.
const signatureHeader = "X-AtlasPay-Signature"

// maxWebhookBody bounds webhook reads; gateway events are small.
const maxWebhookBody = 1 << 20

// handlerTimeout caps a single request's context; the http.Server write
// timeout stays above it so the deadline error reaches the client.
const handlerTimeout = 25 * time.Second

// Server is the account-facing and service-facing HTTP surface.
type Server struct {
	lifecycle usecase.LifecycleUseCase
	admission usecase.AdmissionUseCase
	checkout  usecase.CheckoutUseCase
	plans     usecase.PlanUseCase
	auth      config.AuthConfig
	log       *zerolog.Logger
}

func NewServer(
	lifecycle usecase.LifecycleUseCase,
	admission usecase.AdmissionUseCase,
	checkout usecase.CheckoutUseCase,
	plans usecase.PlanUseCase,
	auth config.AuthConfig,
	logger *zerolog.Logger,
) *Server {
	apiLog := logger.With().Str("component", "APIServer").Logger()
	return &Server{
		lifecycle: lifecycle,
		admission: admission,
		checkout:  checkout,
		plans:     plans,
		auth:      auth,
		log:       &apiLog,
	}
}

// Routes builds the public router. Middleware order matters: trace id first
// so every log line below carries it.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Timeout(handlerTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.handleListPlans)
		r.Post("/webhooks/payment", s.handlePaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(AccountAuth(s.auth.AccountTokenSecret, s.log))
			r.Get("/me/entitlement", s.handleGetEntitlement)
			r.Get("/me/usage", s.handleGetUsage)
			r.Post("/subscriptions", s.handleSubscribe)
			r.Delete("/subscriptions/current", s.handleCancel)
			r.Post("/checkout", s.handleCheckout)
		})

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(s.auth.InternalAPIKey, s.log))
			r.Post("/admission/check", s.handleAdmissionCheck)
			r.Post("/admission/report", s.handleUsageReport)
		})
	})

	return r
}

// ---------------- response DTOs ----------------

type planDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	PriceCents   int64   `json:"price_cents"`
	Currency     string  `json:"currency"`
	Period       string  `json:"period"`
	MaxCredits   float64 `json:"max_credits"`
	GrantedUnits int64   `json:"granted_units"`
	IsDefault    bool    `json:"is_default"`
}

func toPlanDTO(p *model.Plan) planDTO {
	return planDTO{
		ID:           p.ID,
		Name:         p.Name,
		PriceCents:   p.PriceCents,
		Currency:     p.Currency,
		Period:       string(p.Period),
		MaxCredits:   credit.RawUnitsToCredits(p.GrantedUnits),
		GrantedUnits: p.GrantedUnits,
		IsDefault:    p.IsDefault,
	}
}

type entitlementDTO struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Plan      planDTO    `json:"plan"`
	StartAt   time.Time  `json:"start_at"`
	EndAt     *time.Time `json:"end_at,omitempty"`
	LastReset time.Time  `json:"last_reset"`
}

func toEntitlementDTO(v *usecase.EntitlementView) entitlementDTO {
	return entitlementDTO{
		ID:        v.Entitlement.ID,
		Status:    string(v.Entitlement.Status),
		Plan:      toPlanDTO(v.Plan),
		StartAt:   v.Entitlement.StartAt,
		EndAt:     v.Entitlement.EndAt,
		LastReset: v.Entitlement.LastReset,
	}
}

type checkoutDTO struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	RedirectURL string `json:"redirect_url"`
}

// ---------------- handlers ----------------

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		items = append(items, toPlanDTO(p))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	v, err := s.lifecycle.GetMyEntitlement(r.Context(), logging.AccountID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toEntitlementDTO(v))
}

func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	v, err := s.lifecycle.GetUsage(r.Context(), logging.AccountID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	accountID := logging.AccountID(r.Context())
	if _, err := s.lifecycle.Subscribe(r.Context(), accountID, req.PlanID); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.lifecycle.GetMyEntitlement(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toEntitlementDTO(v))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	accountID := logging.AccountID(r.Context())
	if _, err := s.lifecycle.Cancel(r.Context(), accountID); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.lifecycle.GetMyEntitlement(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toEntitlementDTO(v))
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, redirectURL, err := s.checkout.InitiateCheckout(r.Context(), logging.AccountID(r.Context()), req.PlanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, checkoutDTO{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		AmountCents: order.PlanPriceCents,
		Currency:    order.PlanCurrency,
		RedirectURL: redirectURL,
	})
}

// handlePaymentWebhook reads the raw body before any decoding: signature
// verification must see the exact bytes the gateway signed.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	res, err := s.checkout.HandleNotification(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature):
			http.Error(w, "invalid signature", http.StatusUnauthorized)
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "malformed payload", http.StatusBadRequest)
		default:
			// non-2xx so the gateway redelivers; processing is idempotent
			http.Error(w, "processing failed", http.StatusInternalServerError)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdmissionCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID      string `json:"account_id"`
		Prompt         string `json:"prompt"`
		EstimatedUnits int64  `json:"estimated_units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	estimate := req.EstimatedUnits
	if req.Prompt != "" {
		estimate = credit.EstimatePrecheckCost(req.Prompt)
	}

	res, err := s.admission.CheckAdmission(r.Context(), req.AccountID, estimate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleUsageReport always returns 202: the deduction is asynchronous and
// the caller has already delivered the result to the end user.
func (s *Server) handleUsageReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID       string `json:"account_id"`
		PromptUnits     int64  `json:"prompt_units"`
		CompletionUnits int64  `json:"completion_units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	units := credit.ExactCharge(req.PromptUnits, req.CompletionUnits)
	s.admission.ReportUsage(r.Context(), req.AccountID, units)
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "charged_units": units})
}

// ---------------- helpers ----------------

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrPlanNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrNoEntitlement):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySubscribed),
		errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrIsDefaultPlan),
		errors.Is(err, domain.ErrCannotCancelDefault),
		errors.Is(err, domain.ErrPlanNotPurchasable):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, "internal error", status)
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
