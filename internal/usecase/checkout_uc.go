package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/adapter"
	"ai-credit-metering/internal/domain/ports/repository"
	"ai-credit-metering/internal/infra/metrics"
)

// NotificationResult is the webhook acknowledgement body. The gateway only
// cares that we received the event; unknown types are still acknowledged.
type NotificationResult struct {
	Received  bool   `json:"received"`
	EventType string `json:"event_type"`
}

// CheckoutUseCase is the payment reconciler: it opens checkouts against the
// gateway and applies the gateway's asynchronous notifications to the
// entitlement store and the order/payment audit trail, idempotently.
type CheckoutUseCase interface {
	// InitiateCheckout validates the plan, allocates an order number, snapshots
	// the plan onto a pending order, and opens a hosted checkout session.
	// No partial state: the order row is only persisted once the gateway call
	// succeeded.
	InitiateCheckout(ctx context.Context, accountID, planID string) (*model.Order, string, error)
	// HandleNotification verifies the raw payload's signature, then dispatches
	// the event. Signature failures mutate nothing.
	HandleNotification(ctx context.Context, rawPayload []byte, signature string) (*NotificationResult, error)
}

var _ CheckoutUseCase = (*checkoutUC)(nil)

type checkoutUC struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	plans     repository.PlanRepository
	ents      repository.EntitlementRepository
	lifecycle LifecycleUseCase
	tm        repository.TransactionManager
	gateway   adapter.PaymentGateway
	codec     adapter.WebhookCodec
	log       *zerolog.Logger
}

func NewCheckoutUseCase(
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	plans repository.PlanRepository,
	ents repository.EntitlementRepository,
	lifecycle LifecycleUseCase,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	codec adapter.WebhookCodec,
	logger *zerolog.Logger,
) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{
		orders: orders, payments: payments, plans: plans, ents: ents,
		lifecycle: lifecycle, tm: tm, gateway: gateway, codec: codec, log: &l,
	}
}

func (uc *checkoutUC) InitiateCheckout(ctx context.Context, accountID, planID string) (*model.Order, string, error) {
	if accountID == "" || planID == "" {
		return nil, "", domain.ErrInvalidArgument
	}
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrPlanNotFound
		}
		return nil, "", err
	}
	if plan.IsDefault {
		return nil, "", domain.ErrIsDefaultPlan
	}
	if !plan.Purchasable() {
		return nil, "", domain.ErrPlanNotPurchasable
	}
	// Fail fast on a paid-to-paid switch; renewal of the same plan is fine.
	if active, err := uc.ents.FindActiveByAccount(ctx, repository.NoTX, accountID); err == nil && active != nil && active.PlanID != planID {
		cur, err := uc.plans.FindByID(ctx, repository.NoTX, active.PlanID)
		if err != nil {
			return nil, "", err
		}
		if !cur.IsDefault {
			return nil, "", domain.ErrAlreadySubscribed
		}
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, "", err
	}

	seq, err := uc.orders.NextNumber(ctx, repository.NoTX)
	if err != nil {
		return nil, "", err
	}
	now := time.Now()
	o := &model.Order{
		ID:        ulid.Make().String(),
		Number:    fmt.Sprintf("ORD-%d-%06d", now.Year(), seq),
		AccountID: accountID,
		Status:    model.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.SnapshotPlan(plan)

	desc := fmt.Sprintf("%s (%s)", plan.Name, o.Number)
	session, err := uc.gateway.CreateCheckoutSession(ctx, plan.PriceCents, plan.Currency, o.ID, desc)
	if err != nil {
		// Fail-fast, surfaced to the caller; no order row remains.
		return nil, "", err
	}
	o.GatewaySessionID = session.SessionID
	if err := uc.orders.Save(ctx, repository.NoTX, o); err != nil {
		return nil, "", err
	}
	metrics.IncOrder(string(model.OrderStatusPending))
	uc.log.Info().Str("order", o.Number).Str("account_id", accountID).Str("plan_id", planID).
		Msg("checkout initiated")
	return o, session.RedirectURL, nil
}

func (uc *checkoutUC) HandleNotification(ctx context.Context, rawPayload []byte, signature string) (*NotificationResult, error) {
	if len(rawPayload) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	// Security boundary: nothing is parsed or mutated before the raw bytes
	// pass verification.
	if !uc.codec.VerifySignature(rawPayload, signature) {
		metrics.IncWebhookEvent("unverified", "rejected")
		uc.log.Warn().Bool("security", true).Msg("webhook signature verification failed")
		return nil, domain.ErrInvalidSignature
	}
	ev, err := uc.codec.ParseEvent(rawPayload)
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}

	switch ev.Kind {
	case model.GatewayEventCheckoutCompleted:
		err = uc.applyCheckoutCompleted(ctx, ev)
	case model.GatewayEventChargeSucceeded:
		err = uc.applyChargeSucceeded(ctx, ev)
	case model.GatewayEventChargeFailed:
		err = uc.applyChargeFailed(ctx, ev)
	case model.GatewayEventChargeRefunded:
		err = uc.applyChargeRefunded(ctx, ev)
	default:
		// Forward compatibility: acknowledge what we do not understand.
		uc.log.Info().Str("type", ev.WireType).Str("event_id", ev.ID).Msg("unrecognized gateway event acknowledged")
		metrics.IncWebhookEvent("unknown", "acknowledged")
		return &NotificationResult{Received: true, EventType: ev.WireType}, nil
	}
	if errors.Is(err, domain.ErrDuplicateEvent) {
		// Redelivery of a transaction already applied; acknowledge so the
		// gateway stops resending.
		uc.log.Debug().Str("txn_id", ev.TxnID).Msg("duplicate gateway event ignored")
		metrics.IncWebhookEvent(string(ev.Kind), "duplicate")
		return &NotificationResult{Received: true, EventType: string(ev.Kind)}, nil
	}
	if err != nil {
		metrics.IncWebhookEvent(string(ev.Kind), "error")
		return nil, err
	}
	metrics.IncWebhookEvent(string(ev.Kind), "applied")
	return &NotificationResult{Received: true, EventType: string(ev.Kind)}, nil
}

// applyCheckoutCompleted grants the purchase. The payment insert keyed on the
// gateway transaction id is the idempotency gate: a replay, or the loser of a
// concurrent duplicate delivery, sees the row already present and applies
// nothing else. Insert, order transition and grant share one transaction.
func (uc *checkoutUC) applyCheckoutCompleted(ctx context.Context, ev *model.GatewayEvent) error {
	order, err := uc.findOrder(ctx, ev)
	if err != nil {
		return err
	}
	return uc.tm.WithAccountLock(ctx, order.AccountID, func(ctx context.Context, tx repository.Tx) error {
		now := time.Now()
		p := &model.Payment{
			ID:           ulid.Make().String(),
			OrderID:      order.ID,
			AccountID:    order.AccountID,
			Provider:     uc.gateway.Name(),
			GatewayTxnID: ev.TxnID,
			AmountCents:  ev.AmountCents,
			Currency:     ev.Currency,
			Status:       model.PaymentStatusSucceeded,
			Meta:         ev.Meta,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		inserted, err := uc.payments.InsertIfAbsent(ctx, tx, p)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrDuplicateEvent
		}
		if err := uc.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusCompleted, &now); err != nil {
			return err
		}
		if _, err := uc.lifecycle.GrantPurchaseTx(ctx, tx, order.AccountID, order.PlanID); err != nil {
			return err
		}
		metrics.IncPayment(string(model.PaymentStatusSucceeded))
		metrics.AddPaymentRevenue(p.Currency, p.AmountCents)
		uc.log.Info().Str("order", order.Number).Str("txn_id", ev.TxnID).Msg("checkout completed")
		return nil
	})
}

// applyChargeSucceeded refreshes gateway metadata on an existing payment.
// Tolerant no-op when the row is missing: some gateways fire this before the
// checkout-completed equivalent.
func (uc *checkoutUC) applyChargeSucceeded(ctx context.Context, ev *model.GatewayEvent) error {
	p, err := uc.payments.FindByGatewayTxnID(ctx, repository.NoTX, uc.gateway.Name(), ev.TxnID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return uc.payments.UpdateStatus(ctx, repository.NoTX, p.ID, model.PaymentStatusSucceeded, ev.Meta)
}

// applyChargeFailed records the failed attempt and fails the order. The
// entitlement store is untouched: access is only ever granted on the
// checkout-completed event, so a failed charge has nothing to revoke.
func (uc *checkoutUC) applyChargeFailed(ctx context.Context, ev *model.GatewayEvent) error {
	order, err := uc.findOrder(ctx, ev)
	if err != nil {
		return err
	}
	return uc.tm.WithTx(ctx, defaultTxOptions, func(ctx context.Context, tx repository.Tx) error {
		now := time.Now()
		p := &model.Payment{
			ID:           ulid.Make().String(),
			OrderID:      order.ID,
			AccountID:    order.AccountID,
			Provider:     uc.gateway.Name(),
			GatewayTxnID: ev.TxnID,
			AmountCents:  ev.AmountCents,
			Currency:     ev.Currency,
			Status:       model.PaymentStatusFailed,
			Meta:         ev.Meta,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		inserted, err := uc.payments.InsertIfAbsent(ctx, tx, p)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := uc.payments.FindByGatewayTxnID(ctx, tx, uc.gateway.Name(), ev.TxnID)
			if err != nil {
				return err
			}
			if existing.Status == model.PaymentStatusFailed {
				return nil
			}
			if err := uc.payments.UpdateStatus(ctx, tx, existing.ID, model.PaymentStatusFailed, ev.Meta); err != nil {
				return err
			}
		}
		metrics.IncPayment(string(model.PaymentStatusFailed))
		return uc.orders.UpdateStatus(ctx, tx, order.ID, model.OrderStatusFailed, nil)
	})
}

// applyChargeRefunded flips payment and order to refunded and cancels the
// account's active entitlement on the refunded plan, reverting to default.
// Idempotent on repeated terminal-state application.
func (uc *checkoutUC) applyChargeRefunded(ctx context.Context, ev *model.GatewayEvent) error {
	p, err := uc.payments.FindByGatewayTxnID(ctx, repository.NoTX, uc.gateway.Name(), ev.TxnID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.Status == model.PaymentStatusRefunded {
		return nil
	}
	return uc.tm.WithAccountLock(ctx, p.AccountID, func(ctx context.Context, tx repository.Tx) error {
		order, err := uc.orders.FindByID(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}
		// Only a settled order unwinds. A refund correlated to a failed or
		// still-pending order must not rewrite that terminal state.
		if order.Status != model.OrderStatusCompleted {
			uc.log.Warn().Str("order", order.Number).Str("order_status", string(order.Status)).
				Str("txn_id", ev.TxnID).Msg("refund for unsettled order ignored")
			return nil
		}
		if err := uc.payments.UpdateStatus(ctx, tx, p.ID, model.PaymentStatusRefunded, ev.Meta); err != nil {
			return err
		}
		if err := uc.orders.UpdateStatus(ctx, tx, p.OrderID, model.OrderStatusRefunded, nil); err != nil {
			return err
		}
		metrics.IncPayment(string(model.PaymentStatusRefunded))
		uc.log.Info().Str("order", order.Number).Str("txn_id", ev.TxnID).Msg("charge refunded")
		return uc.lifecycle.RevokePlanTx(ctx, tx, p.AccountID, order.PlanID)
	})
}

// findOrder correlates an event to its order via our checkout tag, falling
// back to the gateway session id.
func (uc *checkoutUC) findOrder(ctx context.Context, ev *model.GatewayEvent) (*model.Order, error) {
	if ev.OrderID != "" {
		o, err := uc.orders.FindByID(ctx, repository.NoTX, ev.OrderID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.SessionID != "" {
		o, err := uc.orders.FindByGatewaySession(ctx, repository.NoTX, ev.SessionID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrOrderNotFound
}
