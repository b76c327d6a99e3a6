package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo/repotest"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fixture struct {
	t       *testing.T
	store   *repo.Store
	alerter *fakeAlerter
	locks   *memIdem
	api     *fakeTransport
	sleeps  []time.Duration
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:       t,
		store:   repotest.New(t),
		alerter: &fakeAlerter{},
		locks:   newMemIdem(),
		api:     &fakeTransport{},
	}
}

func (f *fixture) dispatcher() *usecase.Dispatcher {
	sleep := func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return usecase.NewDispatcher(usecase.DispatcherDeps{
		Orders:   f.store.Orders(),
		Products: f.store.Products(),
		Tx:       f.store,
		Ledger:   usecase.NewStockLedger(f.store, clock),
		API:      usecase.NewRetryingAPIDeliverer(f.api, f.store, clock, 0, usecase.WithSleep(sleep)),
		Alerter:  f.alerter,
		Locks:    f.locks,
		Now:      clock,
	}, usecase.DispatchConfig{})
}

func (f *fixture) product(id, slug string, cfg domain.DeliveryConfig) {
	f.t.Helper()
	require.NoError(f.t, f.store.Products().Upsert(context.Background(), id, slug, "Product "+slug, cfg))
}

func (f *fixture) stock(slug string, payloads ...map[string]any) {
	f.t.Helper()
	_, err := f.store.Stock().AddItems(context.Background(), slug, payloads...)
	require.NoError(f.t, err)
}

func (f *fixture) order(id, productID, email string, status domain.Status) *domain.Order {
	f.t.Helper()
	o := &domain.Order{
		ID:        id,
		ProductID: productID,
		Status:    status,
		Amount:    domain.Money{Minor: 75000, Currency: "IDR"},
		Customer:  domain.Customer{Name: "Budi", Email: email},
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	require.NoError(f.t, f.store.Orders().Create(context.Background(), o))
	return o
}

func (f *fixture) reload(id string) *domain.Order {
	f.t.Helper()
	o, err := f.store.Orders().GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) audit(id string) []string {
	f.t.Helper()
	entries, err := f.store.Audit().ListByOrder(context.Background(), id)
	require.NoError(f.t, err)
	events := make([]string, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.Event)
	}
	return events
}

func (f *fixture) due(at time.Time) []domain.NotificationItem {
	f.t.Helper()
	items, err := f.store.Notifications().ListDue(context.Background(), at, 100)
	require.NoError(f.t, err)
	return items
}

type fakeAlerter struct {
	mu    sync.Mutex
	calls []usecase.OrderAlert
	err   error
}

func (a *fakeAlerter) Alert(_ context.Context, al usecase.OrderAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, al)
	return a.err
}

// memIdem is an in-process IdempotencyStore.
type memIdem struct {
	mu     sync.Mutex
	locks  map[string]bool
	values map[string]string
}

func newMemIdem() *memIdem {
	return &memIdem{locks: map[string]bool{}, values: map[string]string{}}
}

func (m *memIdem) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[scope+":"+key] {
		return false, nil
	}
	m.locks[scope+":"+key] = true
	return true, nil
}

func (m *memIdem) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, scope+":"+key)
	return nil
}

func (m *memIdem) Remember(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[scope+":"+key] = value
	return nil
}

func (m *memIdem) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[scope+":"+key]
	return v, ok, nil
}

type fakeReply struct {
	status int
	body   string
	err    error
}

type fakeTransport struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []usecase.APIRequest
}

func (t *fakeTransport) reply(rs ...fakeReply) { t.replies = append(t.replies, rs...) }

func (t *fakeTransport) Do(_ context.Context, req usecase.APIRequest) (*usecase.APIResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, req)
	if len(t.replies) == 0 {
		return nil, errors.New("no reply scripted")
	}
	r := t.replies[0]
	if len(t.replies) > 1 {
		t.replies = t.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &usecase.APIResponse{StatusCode: r.status, Body: []byte(r.body)}, nil
}

type fakeProvider struct {
	name      string
	createErr error
	status    payment.StatusResult
	statusErr error
	creates   int
	checks    int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreatePayment(_ context.Context, req payment.PaymentRequest) (*payment.Session, error) {
	p.creates++
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &payment.Session{
		Provider:    p.name,
		Reference:   p.name + "-" + req.OrderID,
		CheckoutURL: "https://pay.test/" + req.OrderID,
		Amount:      req.Amount,
	}, nil
}

func (p *fakeProvider) CheckStatus(_ context.Context, _ string) (*payment.StatusResult, error) {
	p.checks++
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	st := p.status
	return &st, nil
}
