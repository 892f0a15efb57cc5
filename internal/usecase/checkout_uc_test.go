//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/adapter"
	"ai-credit-metering/internal/usecase"
)

type checkoutDeps struct {
	orders   *MockOrderRepo
	payments *MockPaymentRepo
	plans    *MockPlanRepo
	ents     *MockEntitlementRepo
	tm       *MockTxManager
	gateway  *MockPaymentGateway
	codec    *MockWebhookCodec

	lifecycle usecase.LifecycleUseCase
	uc        usecase.CheckoutUseCase
}

func newCheckoutDeps() *checkoutDeps {
	d := &checkoutDeps{
		orders:   NewMockOrderRepo(),
		payments: NewMockPaymentRepo(),
		plans:    NewMockPlanRepo(),
		ents:     NewMockEntitlementRepo(),
		tm:       NewMockTxManager(),
		gateway:  &MockPaymentGateway{},
		codec:    &MockWebhookCodec{},
	}
	d.lifecycle = usecase.NewLifecycleUseCase(d.ents, d.plans, d.tm, newTestLogger())
	d.uc = usecase.NewCheckoutUseCase(d.orders, d.payments, d.plans, d.ents, d.lifecycle, d.tm, d.gateway, d.codec, newTestLogger())
	return d
}

func (d *checkoutDeps) seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := d.plans.Save(ctx, nil, defaultPlan()); err != nil {
		t.Fatalf("seed default plan: %v", err)
	}
	if err := d.plans.Save(ctx, nil, paidPlan()); err != nil {
		t.Fatalf("seed paid plan: %v", err)
	}
}

func TestCheckout_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshots the plan onto a pending order", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		order, redirectURL, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if order.Status != model.OrderStatusPending {
			t.Errorf("expected pending order, got %s", order.Status)
		}
		if order.PlanName != "Pro" || order.PlanPriceCents != 29_00 || order.PlanGrantedUnits != 12_000_000 {
			t.Errorf("plan snapshot incomplete: %+v", order)
		}
		if !strings.HasPrefix(order.Number, "ORD-") || !strings.Contains(order.Number, "-") {
			t.Errorf("unexpected order number format: %s", order.Number)
		}
		if order.GatewaySessionID == "" {
			t.Error("expected a gateway session on the order")
		}
		if redirectURL == "" {
			t.Error("expected a redirect URL")
		}

		stored, err := d.orders.FindByID(ctx, nil, order.ID)
		if err != nil {
			t.Fatalf("stored order lookup: %v", err)
		}
		if stored.GatewaySessionID != order.GatewaySessionID {
			t.Error("stored order must reference the session")
		}
	})

	t.Run("order numbers come from the sequence and do not repeat", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		o1, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err != nil {
			t.Fatalf("first initiate: %v", err)
		}
		o2, _, err := d.uc.InitiateCheckout(ctx, "acct-2", "plan-pro")
		if err != nil {
			t.Fatalf("second initiate: %v", err)
		}
		if o1.Number == o2.Number {
			t.Errorf("order numbers must be unique, both were %s", o1.Number)
		}
	})

	t.Run("leaves no order behind when the gateway call fails", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)
		d.gateway.CreateSessionFunc = func(ctx context.Context, amountCents int64, currency, orderID, description string) (*adapter.CheckoutSession, error) {
			return nil, errors.New("gateway unreachable")
		}

		_, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if len(d.orders.orders) != 0 {
			t.Errorf("expected no persisted order, found %d", len(d.orders.orders))
		}
	})

	t.Run("rejects the default plan and unknown plans", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		if _, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-default"); !errors.Is(err, domain.ErrIsDefaultPlan) {
			t.Errorf("expected ErrIsDefaultPlan, got %v", err)
		}
		if _, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "missing"); !errors.Is(err, domain.ErrPlanNotFound) {
			t.Errorf("expected ErrPlanNotFound, got %v", err)
		}
	})

	t.Run("rejects a checkout for a second paid plan", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)
		other := paidPlan()
		other.ID = "plan-starter"
		d.plans.Save(ctx, nil, other)

		if _, err := d.lifecycle.Subscribe(ctx, "acct-1", "plan-pro"); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if _, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-starter"); !errors.Is(err, domain.ErrAlreadySubscribed) {
			t.Errorf("expected ErrAlreadySubscribed, got %v", err)
		}
	})
}

// completedEvent builds a checkout.completed event for the given order.
func completedEvent(order *model.Order, txnID string) *model.GatewayEvent {
	return &model.GatewayEvent{
		ID:          "evt-1",
		Kind:        model.GatewayEventCheckoutCompleted,
		WireType:    string(model.GatewayEventCheckoutCompleted),
		TxnID:       txnID,
		SessionID:   order.GatewaySessionID,
		OrderID:     order.ID,
		AmountCents: order.PlanPriceCents,
		Currency:    order.PlanCurrency,
		OccurredAt:  time.Now(),
	}
}

func TestCheckout_HandleNotification_Completed(t *testing.T) {
	ctx := context.Background()

	t.Run("grants the plan exactly once across replays", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		order, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		d.codec.Event = completedEvent(order, "txn-1")

		// the gateway redelivers the same event several times
		for i := 0; i < 5; i++ {
			res, err := d.uc.HandleNotification(ctx, []byte(`{"id":"evt-1"}`), "sig")
			if err != nil {
				t.Fatalf("delivery %d: %v", i, err)
			}
			if !res.Received {
				t.Fatalf("delivery %d: expected received", i)
			}
		}

		if d.payments.Inserted != 1 {
			t.Errorf("expected exactly one payment row, got %d", d.payments.Inserted)
		}
		e := d.ents.ActiveFor("acct-1")
		if e == nil || e.PlanID != "plan-pro" {
			t.Fatalf("expected a single plan-pro grant, got %+v", e)
		}
		stored, _ := d.orders.FindByID(ctx, nil, order.ID)
		if stored.Status != model.OrderStatusCompleted {
			t.Errorf("expected completed order, got %s", stored.Status)
		}
		if stored.CompletedAt == nil {
			t.Error("expected completion timestamp")
		}
	})

	t.Run("correlates via the gateway session when the order tag is missing", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		order, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		ev := completedEvent(order, "txn-2")
		ev.OrderID = ""
		d.codec.Event = ev

		if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
			t.Fatalf("handle: %v", err)
		}
		stored, _ := d.orders.FindByID(ctx, nil, order.ID)
		if stored.Status != model.OrderStatusCompleted {
			t.Errorf("expected completed order, got %s", stored.Status)
		}
	})

	t.Run("errors when no order matches", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)
		d.codec.Event = &model.GatewayEvent{
			Kind:     model.GatewayEventCheckoutCompleted,
			WireType: string(model.GatewayEventCheckoutCompleted),
			TxnID:    "txn-3",
			OrderID:  "unknown-order",
		}

		if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); !errors.Is(err, domain.ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

func TestCheckout_HandleNotification_Signature(t *testing.T) {
	ctx := context.Background()

	d := newCheckoutDeps()
	d.seedCatalog(t)

	order, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	d.codec.Event = completedEvent(order, "txn-1")
	d.codec.VerifyFunc = func(payload []byte, signature string) bool { return false }

	_, err = d.uc.HandleNotification(ctx, []byte(`{"id":"evt-1"}`), "bad-sig")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// nothing may have been mutated
	if d.payments.Inserted != 0 {
		t.Errorf("expected no payment rows, got %d", d.payments.Inserted)
	}
	stored, _ := d.orders.FindByID(ctx, nil, order.ID)
	if stored.Status != model.OrderStatusPending {
		t.Errorf("expected order untouched, got %s", stored.Status)
	}
	if e := d.ents.ActiveFor("acct-1"); e != nil {
		t.Errorf("expected no grant, got %+v", e)
	}
}

func TestCheckout_HandleNotification_Unknown(t *testing.T) {
	ctx := context.Background()

	d := newCheckoutDeps()
	d.seedCatalog(t)
	d.codec.Event = &model.GatewayEvent{
		Kind:     model.GatewayEventUnknown,
		WireType: "checkout.session.async_weirdness",
		TxnID:    "txn-9",
	}

	res, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("unknown events must be acknowledged, got %v", err)
	}
	if !res.Received {
		t.Error("expected received")
	}
	if res.EventType != "checkout.session.async_weirdness" {
		t.Errorf("expected the wire type echoed back, got %s", res.EventType)
	}
	if d.payments.Inserted != 0 {
		t.Errorf("unknown events must not mutate, got %d payment rows", d.payments.Inserted)
	}
}

func TestCheckout_HandleNotification_ChargeFailed(t *testing.T) {
	ctx := context.Background()

	d := newCheckoutDeps()
	d.seedCatalog(t)

	order, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	d.codec.Event = &model.GatewayEvent{
		Kind:          model.GatewayEventChargeFailed,
		WireType:      string(model.GatewayEventChargeFailed),
		TxnID:         "txn-f1",
		OrderID:       order.ID,
		AmountCents:   order.PlanPriceCents,
		Currency:      order.PlanCurrency,
		FailureReason: "card_declined",
	}

	if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored, _ := d.orders.FindByID(ctx, nil, order.ID)
	if stored.Status != model.OrderStatusFailed {
		t.Errorf("expected failed order, got %s", stored.Status)
	}
	p, err := d.payments.FindByGatewayTxnID(ctx, nil, "mockpay", "txn-f1")
	if err != nil {
		t.Fatalf("payment lookup: %v", err)
	}
	if p.Status != model.PaymentStatusFailed {
		t.Errorf("expected failed payment, got %s", p.Status)
	}
	// a failed charge has nothing to revoke
	if e := d.ents.ActiveFor("acct-1"); e != nil {
		t.Errorf("expected entitlements untouched, got %+v", e)
	}
}

func TestCheckout_HandleNotification_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes the grant and reverts to the default plan", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		order, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		d.codec.Event = completedEvent(order, "txn-1")
		if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
			t.Fatalf("complete: %v", err)
		}

		refund := completedEvent(order, "txn-1")
		refund.Kind = model.GatewayEventChargeRefunded
		refund.WireType = string(model.GatewayEventChargeRefunded)
		d.codec.Event = refund

		// refunds are replayed too
		for i := 0; i < 3; i++ {
			if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
				t.Fatalf("refund delivery %d: %v", i, err)
			}
		}

		p, _ := d.payments.FindByGatewayTxnID(ctx, nil, "mockpay", "txn-1")
		if p.Status != model.PaymentStatusRefunded {
			t.Errorf("expected refunded payment, got %s", p.Status)
		}
		stored, _ := d.orders.FindByID(ctx, nil, order.ID)
		if stored.Status != model.OrderStatusRefunded {
			t.Errorf("expected refunded order, got %s", stored.Status)
		}
		cur := d.ents.ActiveFor("acct-1")
		if cur == nil || cur.PlanID != "plan-default" {
			t.Fatalf("expected revert to the default plan, got %+v", cur)
		}
	})

	t.Run("leaves a failed order's terminal state alone", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)

		order, _, err := d.uc.InitiateCheckout(ctx, "acct-1", "plan-pro")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		failed := &model.GatewayEvent{
			Kind:          model.GatewayEventChargeFailed,
			WireType:      string(model.GatewayEventChargeFailed),
			TxnID:         "txn-f2",
			OrderID:       order.ID,
			FailureReason: "card_declined",
		}
		d.codec.Event = failed
		if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
			t.Fatalf("fail: %v", err)
		}

		refund := &model.GatewayEvent{
			Kind:     model.GatewayEventChargeRefunded,
			WireType: string(model.GatewayEventChargeRefunded),
			TxnID:    "txn-f2",
			OrderID:  order.ID,
		}
		d.codec.Event = refund
		if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
			t.Fatalf("refund: %v", err)
		}

		stored, _ := d.orders.FindByID(ctx, nil, order.ID)
		if stored.Status != model.OrderStatusFailed {
			t.Errorf("expected the order to stay failed, got %s", stored.Status)
		}
		p, _ := d.payments.FindByGatewayTxnID(ctx, nil, "mockpay", "txn-f2")
		if p.Status != model.PaymentStatusFailed {
			t.Errorf("expected the payment to stay failed, got %s", p.Status)
		}
		if e := d.ents.ActiveFor("acct-1"); e != nil {
			t.Errorf("expected no entitlement change, got %+v", e)
		}
	})

	t.Run("is a no-op for an unknown transaction", func(t *testing.T) {
		d := newCheckoutDeps()
		d.seedCatalog(t)
		d.codec.Event = &model.GatewayEvent{
			Kind:     model.GatewayEventChargeRefunded,
			WireType: string(model.GatewayEventChargeRefunded),
			TxnID:    "txn-nope",
		}

		if _, err := d.uc.HandleNotification(ctx, []byte(`{}`), "sig"); err != nil {
			t.Errorf("expected tolerant no-op, got %v", err)
		}
	})
}

func TestCheckout_HandleNotification_MalformedPayload(t *testing.T) {
	ctx := context.Background()

	d := newCheckoutDeps()
	d.codec.ParseErr = errors.New("unexpected end of JSON input")

	if _, err := d.uc.HandleNotification(ctx, []byte(`{`), "sig"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := d.uc.HandleNotification(ctx, nil, "sig"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty payload, got %v", err)
	}
}
