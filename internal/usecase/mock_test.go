//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-credit-metering/internal/domain"
	"ai-credit-metering/internal/domain/model"
	"ai-credit-metering/internal/domain/ports/adapter"
	"ai-credit-metering/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// =============================
// Repositories
// =============================

// ---- Mock PlanRepository ----

type MockPlanRepo struct {
	mu    sync.RWMutex
	plans map[string]*model.Plan

	SaveFunc        func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	FindByIDFunc    func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
	FindDefaultFunc func(ctx context.Context, tx repository.Tx) (*model.Plan, error)
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{plans: make(map[string]*model.Plan)}
}

func (m *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, plan)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.plans[plan.ID] = &cp
	return nil
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) FindDefault(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
	if m.FindDefaultFunc != nil {
		return m.FindDefaultFunc(ctx, tx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.IsDefault && p.Active {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockPlanRepo) Deactivate(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Active = false
	return nil
}

// ---- Mock EntitlementRepository ----

type MockEntitlementRepo struct {
	mu   sync.RWMutex
	ents map[string]*model.Entitlement

	// Plans, when set, lets ResetAllDue honor each plan's cadence the way
	// the SQL sweep joins plans; without it a 30-day cadence is assumed.
	Plans *MockPlanRepo

	SaveFunc           func(ctx context.Context, tx repository.Tx, e *model.Entitlement) error
	IncrementUsageFunc func(ctx context.Context, tx repository.Tx, id string, units int64) error
	FindActiveFunc     func(ctx context.Context, tx repository.Tx, accountID string) (*model.Entitlement, error)
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{ents: make(map[string]*model.Entitlement)}
}

func (m *MockEntitlementRepo) Save(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == model.EntitlementStatusActive {
		for _, other := range m.ents {
			if other.ID != e.ID && other.AccountID == e.AccountID && other.Status == model.EntitlementStatusActive {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *e
	m.ents[e.ID] = &cp
	return nil
}

func (m *MockEntitlementRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.ents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEntitlementRepo) FindActiveByAccount(ctx context.Context, tx repository.Tx, accountID string) (*model.Entitlement, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, tx, accountID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	for _, e := range m.ents {
		if e.AccountID == accountID && e.Status == model.EntitlementStatusActive && (e.EndAt == nil || e.EndAt.After(now)) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockEntitlementRepo) FindActiveByAccountAndPlan(ctx context.Context, tx repository.Tx, accountID, planID string) (*model.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	for _, e := range m.ents {
		if e.AccountID == accountID && e.PlanID == planID && e.Status == model.EntitlementStatusActive && (e.EndAt == nil || e.EndAt.After(now)) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockEntitlementRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string, units int64) error {
	if m.IncrementUsageFunc != nil {
		return m.IncrementUsageFunc(ctx, tx, id, units)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ents[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Used += units
	return nil
}

func (m *MockEntitlementRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.EntitlementStatus, cancelledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ents[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	if cancelledAt != nil && e.CancelledAt == nil {
		cp := *cancelledAt
		e.CancelledAt = &cp
	}
	return nil
}

func (m *MockEntitlementRepo) ExtendEnd(ctx context.Context, tx repository.Tx, id string, by time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ents[id]
	if !ok || e.Status != model.EntitlementStatusActive {
		return domain.ErrNotFound
	}
	base := time.Now()
	if e.EndAt != nil && e.EndAt.After(base) {
		base = *e.EndAt
	}
	end := base.Add(by)
	e.EndAt = &end
	return nil
}

func (m *MockEntitlementRepo) ResetAllDue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.ents {
		if e.Status != model.EntitlementStatusActive {
			continue
		}
		due := now.Sub(e.LastReset) >= 30*24*time.Hour
		if m.Plans != nil {
			if plan, err := m.Plans.FindByID(ctx, tx, e.PlanID); err == nil {
				due = e.ResetDue(plan, now)
			}
		}
		if due {
			e.Used = 0
			e.LastReset = now
			n++
		}
	}
	return n, nil
}

func (m *MockEntitlementRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, accountID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.ents {
		if e.AccountID == accountID && e.Status == model.EntitlementStatusActive && e.EndAt != nil && !e.EndAt.After(now) {
			e.Status = model.EntitlementStatusExpired
		}
	}
	return nil
}

func (m *MockEntitlementRepo) MarkExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var accounts []string
	for _, e := range m.ents {
		if e.Status == model.EntitlementStatusActive && e.EndAt != nil && e.EndAt.Before(now) {
			e.Status = model.EntitlementStatusExpired
			accounts = append(accounts, e.AccountID)
		}
	}
	return accounts, nil
}

// ActiveFor is a test helper, not part of the port.
func (m *MockEntitlementRepo) ActiveFor(accountID string) *model.Entitlement {
	e, err := m.FindActiveByAccount(context.Background(), nil, accountID)
	if err != nil {
		return nil
	}
	return e
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
	seq    int64

	SaveFunc       func(ctx context.Context, tx repository.Tx, o *model.Order) error
	NextNumberFunc func(ctx context.Context, tx repository.Tx) (int64, error)
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[string]*model.Order)}
}

func (m *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) FindByGatewaySession(ctx context.Context, tx repository.Tx, sessionID string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.GatewaySessionID == sessionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockOrderRepo) NextNumber(ctx context.Context, tx repository.Tx) (int64, error) {
	if m.NextNumberFunc != nil {
		return m.NextNumberFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	if completedAt != nil && o.CompletedAt == nil {
		cp := *completedAt
		o.CompletedAt = &cp
	}
	return nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu       sync.RWMutex
	byTxn    map[string]*model.Payment // provider + "|" + txn id
	Inserted int                       // counts successful InsertIfAbsent calls

	InsertIfAbsentFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byTxn: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	if m.InsertIfAbsentFunc != nil {
		return m.InsertIfAbsentFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.Provider + "|" + p.GatewayTxnID
	if _, ok := m.byTxn[key]; ok {
		return false, nil
	}
	cp := *p
	m.byTxn[key] = &cp
	m.Inserted++
	return true, nil
}

func (m *MockPaymentRepo) FindByGatewayTxnID(ctx context.Context, tx repository.Tx, provider, txnID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byTxn[provider+"|"+txnID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, meta map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byTxn {
		if p.ID == id {
			p.Status = status
			if meta != nil {
				p.Meta = meta
			}
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrNotFound
}

// =============================
// Transaction manager
// =============================

type noTx struct{}

// MockTxManager passes the callback straight through; unit tests exercise
// ordering and idempotency, not transactional isolation.
type MockTxManager struct {
	mu    sync.Mutex
	Locks []string // account ids WithAccountLock was called with
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, noTx{})
}

func (m *MockTxManager) WithAccountLock(ctx context.Context, accountID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Locks = append(m.Locks, accountID)
	m.mu.Unlock()
	return fn(ctx, noTx{})
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu       sync.Mutex
	seq      int
	Sessions []string

	CreateSessionFunc func(ctx context.Context, amountCents int64, currency, orderID, description string) (*adapter.CheckoutSession, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, amountCents int64, currency, orderID, description string) (*adapter.CheckoutSession, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, amountCents, currency, orderID, description)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := "sess-" + orderID
	m.Sessions = append(m.Sessions, id)
	return &adapter.CheckoutSession{SessionID: id, RedirectURL: "https://example.test/pay/" + id}, nil
}

// ---- Mock WebhookCodec ----

// MockWebhookCodec skips real HMAC: payloads are "verified" unless the test
// overrides VerifyFunc, and events are injected directly.
type MockWebhookCodec struct {
	VerifyFunc func(payload []byte, signature string) bool
	Event      *model.GatewayEvent
	ParseErr   error
}

var _ adapter.WebhookCodec = (*MockWebhookCodec)(nil)

func (m *MockWebhookCodec) VerifySignature(payload []byte, signature string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return true
}

func (m *MockWebhookCodec) ParseEvent(payload []byte) (*model.GatewayEvent, error) {
	if m.ParseErr != nil {
		return nil, m.ParseErr
	}
	cp := *m.Event
	return &cp, nil
}

// =============================
// Task runner
// =============================

// inlineRunner executes submitted tasks synchronously.
type inlineRunner struct{}

func (inlineRunner) Submit(task func(ctx context.Context) error) error {
	return task(context.Background())
}

// fullRunner simulates a saturated queue.
type fullRunner struct{ err error }

func (r fullRunner) Submit(task func(ctx context.Context) error) error { return r.err }
