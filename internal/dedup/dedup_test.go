package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robo-ingest/internal/model"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	failSet bool
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return redis.NewBoolResult(false, errors.New("connection refused"))
	}
	if f.keys == nil {
		f.keys = map[string]time.Duration{}
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func key(id string) model.DedupKey {
	return model.DedupKey{Origin: model.OriginHotmart, ExternalID: id}
}

func TestLRUEvictsOldest(t *testing.T) {
	ctx := context.Background()
	l, err := NewLRU(2)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Add(ctx, key("a"))
	_ = l.Add(ctx, key("b"))
	_ = l.Add(ctx, key("c"))

	if ok, _ := l.Contains(ctx, key("a")); ok {
		t.Fatal("a should have been evicted")
	}
	for _, id := range []string{"b", "c"} {
		if ok, _ := l.Contains(ctx, key(id)); !ok {
			t.Fatalf("%s missing", id)
		}
	}
	if l.Len() != 2 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestLRUKeyIncludesOrigin(t *testing.T) {
	ctx := context.Background()
	l, _ := NewLRU(10)
	_ = l.Add(ctx, model.DedupKey{Origin: model.OriginHotmart, ExternalID: "1"})
	if ok, _ := l.Contains(ctx, model.DedupKey{Origin: model.OriginEduzz, ExternalID: "1"}); ok {
		t.Fatal("same external_id from another origin must not collide")
	}
}

func TestTieredFallsBackToShared(t *testing.T) {
	ctx := context.Background()
	fr := &fakeRedis{}
	shared := NewRedis(fr, time.Hour)

	// another instance admitted "x"
	if err := shared.Add(ctx, key("x")); err != nil {
		t.Fatal(err)
	}
	if fr.keys["robo:dedup:HOTMART:x"] != time.Hour {
		t.Fatalf("ttl not applied: %v", fr.keys)
	}

	local, _ := NewLRU(10)
	tiered := NewTiered(local, shared)
	ok, err := tiered.Contains(ctx, key("x"))
	if err != nil || !ok {
		t.Fatalf("Contains = %v, %v", ok, err)
	}
	if ok, _ := local.Contains(ctx, key("x")); !ok {
		t.Fatal("shared hit should populate the local tier")
	}
}

func TestTieredSharedWriteFailure(t *testing.T) {
	ctx := context.Background()
	local, _ := NewLRU(10)
	tiered := NewTiered(local, NewRedis(&fakeRedis{failSet: true}, time.Hour))

	err := tiered.Add(ctx, key("y"))
	if !errors.Is(err, ErrSharedWrite) {
		t.Fatalf("err = %v, want ErrSharedWrite", err)
	}
	if ok, _ := local.Contains(ctx, key("y")); !ok {
		t.Fatal("local tier must still hold the key")
	}
}
