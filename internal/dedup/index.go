// internal/dedup/index.go
package dedup

import (
	"context"
	"errors"

	"robo-ingest/internal/model"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Index
// ------------------------------------------------------------
// Receiver 의 idempotency index. key 는 (origin, external_id).
// delivery_id 는 시도마다 바뀌므로 절대 key 로 쓰지 않는다.
type Index interface {
	Contains(ctx context.Context, key model.DedupKey) (bool, error)
	Add(ctx context.Context, key model.DedupKey) error
}

// ErrSharedWrite 는 로컬 insert 는 됐지만 공유 tier(Redis) 기록이 실패한 경우.
// Motor 는 이미 변경된 뒤이므로 호출자는 reconciliation marker 를 남겨야 한다.
var ErrSharedWrite = errors.New("dedup: shared tier write failed")

// LRU is the bounded in-process tier. Oldest keys are evicted past capacity.
type LRU struct {
	cache *lru.Cache[model.DedupKey, struct{}]
}

func NewLRU(capacity int) (*LRU, error) {
	c, err := lru.New[model.DedupKey, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &LRU{cache: c}, nil
}

// Contains 는 hit 시 recency 를 갱신한다 (재전송이 잦은 key 가 먼저 밀려나지 않도록).
func (l *LRU) Contains(_ context.Context, key model.DedupKey) (bool, error) {
	_, ok := l.cache.Get(key)
	return ok, nil
}

func (l *LRU) Add(_ context.Context, key model.DedupKey) error {
	l.cache.Add(key, struct{}{})
	return nil
}

func (l *LRU) Len() int { return l.cache.Len() }
