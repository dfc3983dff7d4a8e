package coupon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

type fakeStore struct {
	mu      sync.Mutex
	byCode  map[string]coupon.Coupon
	usage   map[uuid.UUID]map[uuid.UUID]int32
	created []coupon.Coupon
}

func newFakeStore(coupons ...coupon.Coupon) *fakeStore {
	s := &fakeStore{
		byCode: make(map[string]coupon.Coupon),
		usage:  make(map[uuid.UUID]map[uuid.UUID]int32),
	}
	for _, c := range coupons {
		s.byCode[c.Code] = c
	}
	return s
}

func (s *fakeStore) GetByCode(_ context.Context, code string) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byCode[code]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byCode {
		if c.ID == id {
			return c, nil
		}
	}
	return coupon.Coupon{}, coupon.ErrNotFound
}

func (s *fakeStore) List(_ context.Context, _, _ int32) ([]coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]coupon.Coupon, 0, len(s.byCode))
	for _, c := range s.byCode {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.New()
	s.byCode[c.Code] = c
	s.created = append(s.created, c)
	return c, nil
}

func (s *fakeStore) Update(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, existing := range s.byCode {
		if existing.ID == c.ID {
			delete(s.byCode, code)
			s.byCode[c.Code] = c
			return c, nil
		}
	}
	return coupon.Coupon{}, coupon.ErrNotFound
}

func (s *fakeStore) UserUsage(_ context.Context, couponID, userID uuid.UUID) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[couponID][userID], nil
}

// recordUsage mirrors the guarded SQL increments so concurrency behaviour
// can be exercised without postgres.
func (s *fakeStore) recordUsage(c coupon.Coupon, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.byCode[c.Code]
	if cur.Status != coupon.StatusActive || (cur.TotalLimit > 0 && cur.UsedCount >= cur.TotalLimit) {
		return coupon.ErrGlobalLimitReached
	}
	cur.UsedCount++
	if cur.TotalLimit > 0 && cur.UsedCount >= cur.TotalLimit {
		cur.Status = coupon.StatusExpired
	}
	s.byCode[c.Code] = cur
	if cur.PerUserLimit > 0 && s.usage[cur.ID][userID] >= cur.PerUserLimit {
		return coupon.ErrUserLimitReached
	}
	if s.usage[cur.ID] == nil {
		s.usage[cur.ID] = make(map[uuid.UUID]int32)
	}
	s.usage[cur.ID][userID]++
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func windowed(c coupon.Coupon) coupon.Coupon {
	c.StartsAt = fixedNow().Add(-24 * time.Hour)
	c.ExpiresAt = fixedNow().Add(24 * time.Hour)
	return c
}

func TestEvaluateHappyPath(t *testing.T) {
	t.Parallel()

	c := windowed(coupon.Coupon{
		ID:         uuid.New(),
		Code:       "WELCOME10",
		Kind:       coupon.KindPercent,
		PercentBps: 1000,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
	})
	svc := coupon.Service{Store: newFakeStore(c), Now: fixedNow}

	items := []pricing.LineItem{{ProductID: uuid.New(), Qty: 2, UnitPrice: 10000}}
	got, d, err := svc.Evaluate(context.Background(), uuid.New(), "WELCOME10", items)
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, pricing.Money(2000), d.Total)
}

func TestEvaluateUnknownCode(t *testing.T) {
	t.Parallel()

	svc := coupon.Service{Store: newFakeStore(), Now: fixedNow}
	_, _, err := svc.Evaluate(context.Background(), uuid.New(), "NOPE", nil)
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestEvaluateUsesPerUserHistory(t *testing.T) {
	t.Parallel()

	c := windowed(coupon.Coupon{
		ID:           uuid.New(),
		Code:         "ONCE",
		Kind:         coupon.KindFixed,
		Value:        500,
		PerUserLimit: 1,
		Scope:        coupon.ScopeAllProducts,
		Status:       coupon.StatusActive,
	})
	store := newFakeStore(c)
	userID := uuid.New()
	store.usage[c.ID] = map[uuid.UUID]int32{userID: 1}

	svc := coupon.Service{Store: store, Now: fixedNow}
	items := []pricing.LineItem{{ProductID: uuid.New(), Qty: 1, UnitPrice: 10000}}
	_, _, err := svc.Evaluate(context.Background(), userID, "ONCE", items)
	require.ErrorIs(t, err, coupon.ErrUserLimitReached)
}

func TestCreateRejectsBadWindows(t *testing.T) {
	t.Parallel()

	svc := coupon.Service{Store: newFakeStore(), Now: fixedNow}
	_, err := svc.Create(context.Background(), coupon.Coupon{
		Code:      "backwards",
		Kind:      coupon.KindFixed,
		Value:     100,
		StartsAt:  fixedNow(),
		ExpiresAt: fixedNow().Add(-time.Hour),
	})
	require.ErrorIs(t, err, coupon.ErrInvalidInput)
}

func TestCreateUppercasesCode(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := coupon.Service{Store: store, Now: fixedNow}
	created, err := svc.Create(context.Background(), windowed(coupon.Coupon{
		Code:  "save5",
		Kind:  coupon.KindFixed,
		Value: 500,
	}))
	require.NoError(t, err)
	require.Equal(t, "SAVE5", created.Code)
}

func TestConcurrentRedemptionRespectsGlobalLimit(t *testing.T) {
	t.Parallel()

	c := windowed(coupon.Coupon{
		ID:         uuid.New(),
		Code:       "LAST1",
		Kind:       coupon.KindFixed,
		Value:      500,
		TotalLimit: 1,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
	})
	store := newFakeStore(c)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.recordUsage(c, uuid.New())
		}(i)
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, coupon.ErrGlobalLimitReached)
			limited++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, limited)

	got, err := store.GetByCode(context.Background(), "LAST1")
	require.NoError(t, err)
	require.Equal(t, coupon.StatusExpired, got.Status)
}
