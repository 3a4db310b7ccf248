package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/domain"
	"github.com/thgg666/seckill-core/internal/hotstore"
	"github.com/thgg666/seckill-core/internal/workerpool"
)

type fakeHotStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeHotStore() *fakeHotStore {
	return &fakeHotStore{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

func (f *fakeHotStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", domain.New(domain.KindNotFound, "not found")
	}
	return v, nil
}

func (f *fakeHotStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttl[key] = ttl
	return nil
}

func (f *fakeHotStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeHotStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttl[key], nil
}
func (f *fakeHotStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (f *fakeHotStore) Incr(ctx context.Context, key string) (int64, error)             { return 0, nil }
func (f *fakeHotStore) Decr(ctx context.Context, key string) (int64, error)             { return 0, nil }
func (f *fakeHotStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, nil
}
func (f *fakeHotStore) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, nil
}
func (f *fakeHotStore) Eval(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	return nil, nil
}
func (f *fakeHotStore) Ping(ctx context.Context) error { return nil }

type fakeSourceWriter struct {
	mu            sync.Mutex
	savedStocks   map[string]int
	savedCounters map[string]int
	saveErr       error
	calls         int
}

func newFakeSourceWriter() *fakeSourceWriter {
	return &fakeSourceWriter{savedStocks: make(map[string]int), savedCounters: make(map[string]int)}
}

func (w *fakeSourceWriter) SaveStock(ctx context.Context, activityID string, currentStock int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.saveErr != nil {
		return w.saveErr
	}
	w.savedStocks[activityID] = currentStock
	return nil
}

func (w *fakeSourceWriter) SaveUserCounter(ctx context.Context, userID, activityID string, purchasedCount int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.saveErr != nil {
		return w.saveErr
	}
	w.savedCounters[userID+":"+activityID] = purchasedCount
	return nil
}

func testManager(t *testing.T) (*Manager, *fakeHotStore, *fakeSourceWriter, *workerpool.Pool) {
	t.Helper()
	store := newFakeHotStore()
	source := newFakeSourceWriter()
	pool := workerpool.New(2, 8, zerolog.Nop())
	pool.Start(context.Background())

	m := New(store, source, pool, Config{
		ActivityTTL:       time.Hour,
		StockTTL:          time.Minute,
		UserLimitTTL:      time.Hour,
		RefreshAheadRatio: 0.2,
	}, zerolog.Nop())
	return m, store, source, pool
}

func TestManager_SetGetActivity(t *testing.T) {
	m, _, _, pool := testManager(t)
	defer pool.Stop()
	act := &domain.Activity{ID: "act1", Name: "flash sale", Status: domain.ActivityActive, TotalStock: 10}

	if err := m.SetActivity(context.Background(), act); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := m.GetActivity(context.Background(), "act1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "flash sale" {
		t.Errorf("expected name to round-trip, got %q", got.Name)
	}
}

func TestManager_GetActivityCorruptEntry(t *testing.T) {
	m, store, _, pool := testManager(t)
	defer pool.Stop()
	store.data[hotstore.ActivityKey("act1")] = "not json"

	_, err := m.GetActivity(context.Background(), "act1")
	if domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("expected KindInternal, got %v", domain.KindOf(err))
	}
}

func TestManager_WriteStockThroughPropagatesSynchronously(t *testing.T) {
	m, store, source, pool := testManager(t)
	defer pool.Stop()

	if err := m.WriteStock(context.Background(), "act1", 7, WriteThrough); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.data[hotstore.StockKey("act1")] != "7" {
		t.Errorf("expected hot store updated synchronously, got %q", store.data[hotstore.StockKey("act1")])
	}
	if source.savedStocks["act1"] != 7 {
		t.Errorf("expected system of record updated synchronously, got %d", source.savedStocks["act1"])
	}
}

func TestManager_WriteStockBehindPropagatesAsynchronously(t *testing.T) {
	m, store, source, pool := testManager(t)

	if err := m.WriteStock(context.Background(), "act1", 7, WriteBehind); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.data[hotstore.StockKey("act1")] != "7" {
		t.Fatal("expected hot store updated synchronously even under write-behind")
	}

	pool.Stop()
	source.mu.Lock()
	defer source.mu.Unlock()
	if source.savedStocks["act1"] != 7 {
		t.Errorf("expected queued system-of-record write to have drained, got %d", source.savedStocks["act1"])
	}
}

func TestManager_WriteStockCacheOnlyNeverTouchesSource(t *testing.T) {
	m, store, source, pool := testManager(t)
	defer pool.Stop()

	if err := m.WriteStockCacheOnly(context.Background(), "act1", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.data[hotstore.StockKey("act1")] != "7" {
		t.Errorf("expected hot store updated, got %q", store.data[hotstore.StockKey("act1")])
	}

	source.mu.Lock()
	defer source.mu.Unlock()
	if source.calls != 0 {
		t.Errorf("expected WriteStockCacheOnly to never call the system-of-record writer, got %d calls", source.calls)
	}
}

func TestManager_GetUserCounterDefaultsToZero(t *testing.T) {
	m, _, _, pool := testManager(t)
	defer pool.Stop()
	count, err := m.GetUserCounter(context.Background(), "user1", "act1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 for unseen user, got %d", count)
	}
}

func TestManager_WriteUserCounterThrough(t *testing.T) {
	m, _, source, pool := testManager(t)
	defer pool.Stop()
	if err := m.WriteUserCounter(context.Background(), "user1", "act1", 2, WriteThrough); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.savedCounters["user1:act1"] != 2 {
		t.Errorf("expected system of record updated, got %d", source.savedCounters["user1:act1"])
	}
}

func TestManager_GetStockTriggersRefreshAheadWhenTTLLow(t *testing.T) {
	m, store, _, pool := testManager(t)
	key := hotstore.StockKey("act1")
	store.data[key] = "5"
	store.ttl[key] = 5 * time.Second // 5s remaining out of a 60s full TTL, well under the 0.2 ratio

	called := make(chan struct{}, 1)
	m.SetStockLoader(func(ctx context.Context, activityID string) (int, error) {
		called <- struct{}{}
		return 9, nil
	})

	stock, err := m.GetStock(context.Background(), "act1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 5 {
		t.Errorf("expected current read to return 5 regardless of refresh, got %d", stock)
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected refresh-ahead loader to be invoked")
	}
	pool.Stop()

	if store.data[key] != "9" {
		t.Errorf("expected refreshed stock value 9, got %q", store.data[key])
	}
}

func TestManager_GetStockSkipsRefreshWhenTTLHigh(t *testing.T) {
	m, store, _, pool := testManager(t)
	key := hotstore.StockKey("act1")
	store.data[key] = "5"
	store.ttl[key] = 55 * time.Second // well above the 0.2 ratio of a 60s TTL

	called := false
	m.SetStockLoader(func(ctx context.Context, activityID string) (int, error) {
		called = true
		return 9, nil
	})

	if _, err := m.GetStock(context.Background(), "act1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool.Stop()
	if called {
		t.Error("expected refresh-ahead not to trigger while TTL ratio is healthy")
	}
}
