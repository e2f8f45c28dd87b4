package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory TransactionScope. Execute holds a global lock for
// the duration of the transaction and restores a snapshot on error.
type memStore struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]ledger.Account
	payments      map[uuid.UUID]ledger.PaymentReference
	verifications map[uuid.UUID]ledger.VerificationRequest
	edges         []ledger.ReferralEdge
	commissions   map[uuid.UUID]ledger.CommissionEvent
	schedules     map[uuid.UUID]ledger.VestingSchedule
	releases      map[string]ledger.VestingRelease
	launched      bool
	events        []shared.DomainEvent

	// failure injection
	paymentConflicts  int
	accountSaveErr    error
	commissionSaveErr error
}

type memSnapshot struct {
	accounts      map[uuid.UUID]ledger.Account
	payments      map[uuid.UUID]ledger.PaymentReference
	verifications map[uuid.UUID]ledger.VerificationRequest
	edges         []ledger.ReferralEdge
	commissions   map[uuid.UUID]ledger.CommissionEvent
	schedules     map[uuid.UUID]ledger.VestingSchedule
	releases      map[string]ledger.VestingRelease
	launched      bool
	events        []shared.DomainEvent
}

func newMemStore() *memStore {
	return &memStore{
		accounts:      map[uuid.UUID]ledger.Account{},
		payments:      map[uuid.UUID]ledger.PaymentReference{},
		verifications: map[uuid.UUID]ledger.VerificationRequest{},
		commissions:   map[uuid.UUID]ledger.CommissionEvent{},
		schedules:     map[uuid.UUID]ledger.VestingSchedule{},
		releases:      map[string]ledger.VestingRelease{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *memStore) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := memSnapshot{
		accounts:      cloneMap(m.accounts),
		payments:      cloneMap(m.payments),
		verifications: cloneMap(m.verifications),
		edges:         append([]ledger.ReferralEdge(nil), m.edges...),
		commissions:   cloneMap(m.commissions),
		schedules:     cloneMap(m.schedules),
		releases:      cloneMap(m.releases),
		launched:      m.launched,
		events:        append([]shared.DomainEvent(nil), m.events...),
	}
	if err := fn(memRepos{m}); err != nil {
		m.accounts = snap.accounts
		m.payments = snap.payments
		m.verifications = snap.verifications
		m.edges = snap.edges
		m.commissions = snap.commissions
		m.schedules = snap.schedules
		m.releases = snap.releases
		m.launched = snap.launched
		m.events = snap.events
		return err
	}
	return nil
}

func (m *memStore) account(t *testing.T, id uuid.UUID) ledger.Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	require.True(t, ok, "account %s", id)
	return a
}

func (m *memStore) payment(t *testing.T, id uuid.UUID) ledger.PaymentReference {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	require.True(t, ok, "payment %s", id)
	return p
}

func (m *memStore) eventCount(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

type memRepos struct{ m *memStore }

func (r memRepos) Accounts() ledger.AccountRepository                  { return memAccounts(r) }
func (r memRepos) Payments() ledger.PaymentReferenceRepository         { return memPayments(r) }
func (r memRepos) Verifications() ledger.VerificationRequestRepository { return memVerifications(r) }
func (r memRepos) Referrals() ledger.ReferralRepository                { return memReferrals(r) }
func (r memRepos) Commissions() ledger.CommissionRepository            { return memCommissions(r) }
func (r memRepos) Vesting() ledger.VestingRepository                   { return memVesting(r) }
func (r memRepos) Settings() ledger.SettingsRepository                 { return memSettings(r) }
func (r memRepos) Events() EventRecorder                               { return memEvents(r) }

type memAccounts struct{ m *memStore }

func (r memAccounts) FindByID(_ context.Context, id uuid.UUID) (*ledger.Account, error) {
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	a.ClearDomainEvents()
	a.RestoreVersion(a.Version)
	return &a, nil
}

func (r memAccounts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	return r.FindByID(ctx, id)
}

func (r memAccounts) Create(_ context.Context, a *ledger.Account) error {
	if _, ok := r.m.accounts[a.ID]; ok {
		return shared.ErrAlreadyExists
	}
	a.MarkPersisted()
	r.m.accounts[a.ID] = *a
	return nil
}

func (r memAccounts) Save(_ context.Context, a *ledger.Account) error {
	if r.m.accountSaveErr != nil {
		return r.m.accountSaveErr
	}
	stored, ok := r.m.accounts[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != a.PersistedVersion() {
		return shared.ErrConcurrencyConflict
	}
	a.MarkPersisted()
	r.m.accounts[a.ID] = *a
	return nil
}

func (r memAccounts) ExistsByID(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.m.accounts[id]
	return ok, nil
}

type memPayments struct{ m *memStore }

func (r memPayments) load(p ledger.PaymentReference) *ledger.PaymentReference {
	p.ClearDomainEvents()
	p.RestoreVersion(p.Version)
	return &p
}

func (r memPayments) FindByID(_ context.Context, id uuid.UUID) (*ledger.PaymentReference, error) {
	p, ok := r.m.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r.load(p), nil
}

func (r memPayments) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.PaymentReference, error) {
	return r.FindByID(ctx, id)
}

func (r memPayments) FindByOrderID(_ context.Context, orderID string) (*ledger.PaymentReference, error) {
	for _, p := range r.m.payments {
		if p.OrderID == orderID {
			return r.load(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memPayments) FindByGatewayPaymentID(_ context.Context, id string) (*ledger.PaymentReference, error) {
	for _, p := range r.m.payments {
		if p.GatewayPaymentID != nil && *p.GatewayPaymentID == id {
			return r.load(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memPayments) ExistsByTxHash(_ context.Context, hash string, excludeID uuid.UUID) (bool, error) {
	for _, p := range r.m.payments {
		if p.ID != excludeID && p.TxHash != nil && *p.TxHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r memPayments) ListByAccount(_ context.Context, accountID uuid.UUID, filter ledger.PaymentReferenceFilter) (*shared.Paginated[ledger.PaymentReference], error) {
	var items []ledger.PaymentReference
	for _, p := range r.m.payments {
		if p.OwnerAccountID == accountID && (filter.Status == nil || p.Status == *filter.Status) {
			items = append(items, p)
		}
	}
	f := filter.Filter.Normalize()
	page := shared.NewPaginated(items, int64(len(items)), f.Page, f.PageSize)
	return &page, nil
}

func (r memPayments) ListByStatus(_ context.Context, status ledger.PaymentStatus, limit int) ([]ledger.PaymentReference, error) {
	var items []ledger.PaymentReference
	for _, p := range r.m.payments {
		if p.Status == status && len(items) < limit {
			items = append(items, p)
		}
	}
	return items, nil
}

func (r memPayments) Create(_ context.Context, p *ledger.PaymentReference) error {
	for _, existing := range r.m.payments {
		if existing.OrderID == p.OrderID {
			return shared.ErrAlreadyExists
		}
	}
	p.MarkPersisted()
	r.m.payments[p.ID] = *p
	return nil
}

func (r memPayments) Save(_ context.Context, p *ledger.PaymentReference, expected ledger.PaymentStatus) error {
	if r.m.paymentConflicts > 0 {
		r.m.paymentConflicts--
		return shared.ErrConcurrencyConflict
	}
	stored, ok := r.m.payments[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != p.PersistedVersion() || stored.Status != expected {
		return shared.ErrConcurrencyConflict
	}
	if p.TxHash != nil {
		for _, other := range r.m.payments {
			if other.ID != p.ID && other.TxHash != nil && *other.TxHash == *p.TxHash {
				return shared.ErrDuplicateProof
			}
		}
	}
	p.MarkPersisted()
	r.m.payments[p.ID] = *p
	return nil
}

type memVerifications struct{ m *memStore }

func (r memVerifications) FindByID(_ context.Context, id uuid.UUID) (*ledger.VerificationRequest, error) {
	v, ok := r.m.verifications[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	v.ClearDomainEvents()
	v.RestoreVersion(v.Version)
	return &v, nil
}

func (r memVerifications) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.VerificationRequest, error) {
	return r.FindByID(ctx, id)
}

func (r memVerifications) FindByPaymentReference(_ context.Context, refID uuid.UUID) ([]ledger.VerificationRequest, error) {
	var out []ledger.VerificationRequest
	for _, v := range r.m.verifications {
		if v.PaymentReferenceID == refID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r memVerifications) ExistsByTxHash(_ context.Context, hash string) (bool, error) {
	for _, v := range r.m.verifications {
		if v.TxHash != nil && *v.TxHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r memVerifications) list(match func(ledger.VerificationRequest) bool, filter shared.Filter) *shared.Paginated[ledger.VerificationRequest] {
	var items []ledger.VerificationRequest
	for _, v := range r.m.verifications {
		if match(v) {
			items = append(items, v)
		}
	}
	f := filter.Normalize()
	page := shared.NewPaginated(items, int64(len(items)), f.Page, f.PageSize)
	return &page
}

func (r memVerifications) ListOpen(_ context.Context, filter shared.Filter) (*shared.Paginated[ledger.VerificationRequest], error) {
	return r.list(func(v ledger.VerificationRequest) bool { return v.Status.IsOpen() }, filter), nil
}

func (r memVerifications) ListByAccount(_ context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[ledger.VerificationRequest], error) {
	return r.list(func(v ledger.VerificationRequest) bool { return v.AccountID == accountID }, filter), nil
}

func (r memVerifications) Create(_ context.Context, v *ledger.VerificationRequest) error {
	v.MarkPersisted()
	r.m.verifications[v.ID] = *v
	return nil
}

func (r memVerifications) Save(_ context.Context, v *ledger.VerificationRequest) error {
	stored, ok := r.m.verifications[v.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != v.PersistedVersion() {
		return shared.ErrConcurrencyConflict
	}
	v.MarkPersisted()
	r.m.verifications[v.ID] = *v
	return nil
}

type memReferrals struct{ m *memStore }

func (r memReferrals) Upline(_ context.Context, accountID uuid.UUID) ([]ledger.ReferralEdge, error) {
	var out []ledger.ReferralEdge
	for _, e := range r.m.edges {
		if e.ReferredID == accountID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (r memReferrals) Downline(_ context.Context, referrerID uuid.UUID, level int) ([]ledger.ReferralEdge, error) {
	var out []ledger.ReferralEdge
	for _, e := range r.m.edges {
		if e.ReferrerID == referrerID && (level == 0 || e.Level == level) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memReferrals) CreateEdges(_ context.Context, edges []ledger.ReferralEdge) error {
	r.m.edges = append(r.m.edges, edges...)
	return nil
}

type memCommissions struct{ m *memStore }

func (r memCommissions) ExistsForContribution(_ context.Context, id uuid.UUID) (bool, error) {
	for _, c := range r.m.commissions {
		if c.SourceContributionID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r memCommissions) CreateBatch(_ context.Context, events []*ledger.CommissionEvent) error {
	if r.m.commissionSaveErr != nil {
		return r.m.commissionSaveErr
	}
	for _, e := range events {
		for _, c := range r.m.commissions {
			if c.SourceContributionID == e.SourceContributionID && c.Level == e.Level {
				return shared.ErrAlreadyExists
			}
		}
		r.m.commissions[e.ID] = *e
	}
	return nil
}

func (r memCommissions) ListByAccount(_ context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[ledger.CommissionEvent], error) {
	var items []ledger.CommissionEvent
	for _, c := range r.m.commissions {
		if c.AccountID == accountID {
			items = append(items, c)
		}
	}
	f := filter.Normalize()
	page := shared.NewPaginated(items, int64(len(items)), f.Page, f.PageSize)
	return &page, nil
}

func (r memCommissions) ListAvailableForUpdate(_ context.Context, accountID uuid.UUID) ([]*ledger.CommissionEvent, error) {
	var out []*ledger.CommissionEvent
	for _, c := range r.m.commissions {
		if c.AccountID == accountID && c.Status == ledger.CommissionAvailable {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memCommissions) MarkWithdrawn(_ context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		c := r.m.commissions[id]
		c.Status = ledger.CommissionWithdrawn
		c.WithdrawnAt = &at
		r.m.commissions[id] = c
	}
	return nil
}

type memVesting struct{ m *memStore }

func (r memVesting) FindByAccount(_ context.Context, accountID uuid.UUID) (*ledger.VestingSchedule, error) {
	s, ok := r.m.schedules[accountID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	s.ClearDomainEvents()
	s.RestoreVersion(s.Version)
	return &s, nil
}

func (r memVesting) FindByAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*ledger.VestingSchedule, error) {
	return r.FindByAccount(ctx, accountID)
}

func (r memVesting) ListDue(_ context.Context, now time.Time, limit int) ([]ledger.VestingSchedule, error) {
	var out []ledger.VestingSchedule
	for _, s := range r.m.schedules {
		if s.IsDue(now) && !s.IsComplete() && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r memVesting) Create(_ context.Context, s *ledger.VestingSchedule) error {
	s.MarkPersisted()
	r.m.schedules[s.AccountID] = *s
	return nil
}

func (r memVesting) Save(_ context.Context, s *ledger.VestingSchedule) error {
	stored, ok := r.m.schedules[s.AccountID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != s.PersistedVersion() {
		return shared.ErrConcurrencyConflict
	}
	s.MarkPersisted()
	r.m.schedules[s.AccountID] = *s
	return nil
}

func (r memVesting) RecordRelease(_ context.Context, rel ledger.VestingRelease) error {
	key := fmt.Sprintf("%s/%d", rel.AccountID, rel.TickIndex)
	if _, ok := r.m.releases[key]; ok {
		return shared.ErrAlreadyExists
	}
	r.m.releases[key] = rel
	return nil
}

func (r memVesting) ListReleases(_ context.Context, accountID uuid.UUID) ([]ledger.VestingRelease, error) {
	var out []ledger.VestingRelease
	for _, rel := range r.m.releases {
		if rel.AccountID == accountID {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickIndex < out[j].TickIndex })
	return out, nil
}

type memSettings struct{ m *memStore }

func (r memSettings) IsLaunched(context.Context) (bool, error) { return r.m.launched, nil }

func (r memSettings) SetLaunched(_ context.Context, launched bool, _ uuid.UUID) error {
	r.m.launched = launched
	return nil
}

type memEvents struct{ m *memStore }

func (r memEvents) Record(_ context.Context, events ...shared.DomainEvent) error {
	r.m.events = append(r.m.events, events...)
	return nil
}

// fakeClock is a settable clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeGateway is a scriptable PaymentGateway
type fakeGateway struct {
	invoice     *ledger.Invoice
	invoiceErr  error
	status      *ledger.GatewayStatusSignal
	statusErr   error
	block       bool
	statusCalls atomic.Int32
}

func (g *fakeGateway) CreateInvoice(_ context.Context, req ledger.InvoiceRequest) (*ledger.Invoice, error) {
	if g.invoiceErr != nil {
		return nil, g.invoiceErr
	}
	if g.invoice != nil {
		return g.invoice, nil
	}
	return &ledger.Invoice{
		InvoiceID:        "inv-" + req.OrderID,
		GatewayPaymentID: "pay-" + req.OrderID,
		PaymentURL:       "https://gateway.example/invoice/" + req.OrderID,
	}, nil
}

func (g *fakeGateway) GetPaymentStatus(ctx context.Context, _ string) (*ledger.GatewayStatusSignal, error) {
	g.statusCalls.Add(1)
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	s := *g.status
	return &s, nil
}

// harness wires every service against one memStore
type harness struct {
	store        *memStore
	clock        *fakeClock
	gateway      *fakeGateway
	deps         Deps
	accounts     *AccountService
	commission   *CommissionService
	crediting    *CreditingService
	recon        *ReconciliationService
	verification *VerificationService
	yield        *YieldService
	vesting      *VestingService
	withdrawals  *WithdrawalService
	admin        ledger.AdminCapability
}

var harnessStart = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{now: harnessStart}
	cfg := DefaultConfig()
	cfg.TokenPrice = decimal.NewFromInt(1)
	cfg.GatewayTimeout = 50 * time.Millisecond
	for _, opt := range opts {
		opt(&cfg)
	}

	deps := Deps{Scope: store, Config: cfg, Now: clock.Now}
	gateway := &fakeGateway{}
	commission := NewCommissionService(deps)
	crediting := NewCreditingService(deps, commission)
	return &harness{
		store:        store,
		clock:        clock,
		gateway:      gateway,
		deps:         deps,
		accounts:     NewAccountService(deps),
		commission:   commission,
		crediting:    crediting,
		recon:        NewReconciliationService(deps, gateway, crediting),
		verification: NewVerificationService(deps, crediting, nil),
		yield:        NewYieldService(deps),
		vesting:      NewVestingService(deps),
		withdrawals:  NewWithdrawalService(deps),
		admin:        ledger.GrantAdminCapability(uuid.New(), harnessStart),
	}
}

func (h *harness) register(t *testing.T, referrer *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := h.accounts.Register(context.Background(), RegisterCommand{AccountID: id, ReferrerID: referrer})
	require.NoError(t, err)
	return id
}

func (h *harness) newPayment(t *testing.T, owner uuid.UUID, amount int64) *PaymentReferenceDTO {
	t.Helper()
	dto, err := h.recon.CreateInvoice(context.Background(), CreateInvoiceCommand{
		AccountID:  owner,
		FiatAmount: decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return dto
}

var harnessAccount = uuid.MustParse("6f1c2a8e-3b4d-4e5f-8a9b-0c1d2e3f4a5b")

func testTxHash(n int) string {
	return fmt.Sprintf("0x%064x", n+1)
}
