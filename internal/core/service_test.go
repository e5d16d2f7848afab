package core

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pokedex/internal/blob"
	"pokedex/internal/infra/persistence/document"
	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu      sync.Mutex
	calls   []metricsCall
	records int
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) SetRecords(n int) { c.records = n }

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }

func TestServiceListFilters(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	all, err := svc.List(ctx, domain.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 records, got %d", len(all))
	}
	both, err := svc.List(ctx, domain.Filter{Name: strPtr("GAR"), Category: strPtr("poison")})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(both) != 1 || both[0].ID != 5 {
		t.Fatalf("expected Gengar only, got %+v", both)
	}
	none, err := svc.List(ctx, domain.Filter{Name: strPtr("pika"), Category: strPtr("water")})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no match, got %+v %v", none, err)
	}
	if _, err := svc.List(ctx, domain.Filter{Name: strPtr("P")}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for short name, got %v", err)
	}
}

func TestServiceGet(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()
	got, err := svc.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (domain.Pokemon{Name: "Pikachu", Category: "Electric", Level: 25}) {
		t.Fatalf("unexpected record %+v", got)
	}
	if _, err := svc.Get(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Get(ctx, 0); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceCreateUpdateDelete(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	svc := NewInMemoryService(WithMetricsRecorder(metrics))
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Pokemon{Name: "Eevee", Category: "Normal", Level: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 6 {
		t.Fatalf("expected id 6, got %d", created.ID)
	}
	if metrics.records != 6 {
		t.Fatalf("expected records gauge 6, got %d", metrics.records)
	}

	updated, err := svc.Update(ctx, 6, domain.Pokemon{Name: "Vaporeon", Category: "Water", Level: 30})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Vaporeon" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.Update(ctx, 42, domain.Pokemon{Level: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := svc.Delete(ctx, 6); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, 6); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := svc.Get(ctx, 6); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted record must be gone, got %v", err)
	}

	if _, err := svc.Create(ctx, domain.Pokemon{Name: "Zero", Level: 0}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	for _, want := range []metricsCall{{"create", true}, {"update", true}, {"update", false}, {"delete", true}, {"delete", false}, {"create", false}} {
		if !metrics.has(want.op, want.success) {
			t.Fatalf("missing metrics call %+v in %+v", want, metrics.calls)
		}
	}
}

type failingBlobs struct{ blob.Store }

func (failingBlobs) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func TestServicePersistenceFailureIsReportedAndLogged(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	store := document.NewStore(failingBlobs{Store: blob.NewMemory()}, "", domain.IDPolicyMax)
	store.ImportState(memory.Snapshot{Records: domain.Seed()})
	svc := NewService(store, WithLogger(zap.New(obs)))

	_, err := svc.Create(context.Background(), domain.Pokemon{Name: "Eevee", Level: 5})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if _, err := svc.Get(context.Background(), 6); err != nil {
		t.Fatalf("in-memory commit must be visible: %v", err)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Fatalf("expected one error log, got %v", logs.All())
	}
}

func TestServiceLogsRejectionsAtWarn(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	svc := NewInMemoryService(WithLogger(zap.New(obs)))
	if _, err := svc.Get(context.Background(), 77); err == nil {
		t.Fatalf("expected error")
	}
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warns) != 1 || warns[0].ContextMap()["operation"] != "get" {
		t.Fatalf("unexpected warn logs %+v", warns)
	}
	if _, err := svc.Get(context.Background(), 1); err != nil {
		t.Fatalf("get: %v", err)
	}
	if logs.FilterLevelExact(zapcore.DebugLevel).Len() != 1 {
		t.Fatalf("expected one debug log")
	}
}

func TestServiceClockOverride(t *testing.T) {
	ticks := []time.Time{time.Unix(0, 0), time.Unix(2, 0)}
	var i int
	clock := func() time.Time {
		tick := ticks[i%len(ticks)]
		i++
		return tick
	}
	obs, logs := observer.New(zapcore.DebugLevel)
	svc := NewInMemoryService(WithClock(clock), WithLogger(zap.New(obs)))
	if _, err := svc.Get(context.Background(), 1); err != nil {
		t.Fatalf("get: %v", err)
	}
	entry := logs.All()[0]
	if got := entry.ContextMap()["duration"]; got != 2*time.Second {
		t.Fatalf("expected 2s duration, got %v", got)
	}
}

func TestServiceConcurrentCreates(t *testing.T) {
	svc := NewInMemoryService()
	var wg sync.WaitGroup
	ids := make(chan int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := svc.Create(context.Background(), domain.Pokemon{Name: "Ditto", Level: 1})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- e.ID
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[int]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 unique ids, got %d", len(seen))
	}
}

func TestServiceExportsOnlyRecordOperations(t *testing.T) {
	typ := reflect.TypeOf(&Service{})
	var got []string
	for i := 0; i < typ.NumMethod(); i++ {
		got = append(got, typ.Method(i).Name)
	}
	sort.Strings(got)
	want := []string{"Create", "Delete", "Get", "List", "Update"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("exported methods = %v, want %v", got, want)
	}
}
