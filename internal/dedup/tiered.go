package dedup

import (
	"context"
	"fmt"

	"robo-ingest/internal/model"
)

// Tiered checks the local LRU first and falls back to the shared tier.
//
//   - Contains: local hit → true. shared hit → local 에도 채워 넣고 true.
//   - Add:      local 먼저, 그다음 shared. shared 실패는 ErrSharedWrite 로 감싼다.
type Tiered struct {
	local  Index
	shared Index
}

func NewTiered(local, shared Index) *Tiered {
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Contains(ctx context.Context, key model.DedupKey) (bool, error) {
	ok, err := t.local.Contains(ctx, key)
	if err != nil || ok {
		return ok, err
	}
	ok, err = t.shared.Contains(ctx, key)
	if err != nil {
		return false, err
	}
	if ok {
		_ = t.local.Add(ctx, key)
	}
	return ok, nil
}

func (t *Tiered) Add(ctx context.Context, key model.DedupKey) error {
	if err := t.local.Add(ctx, key); err != nil {
		return err
	}
	if err := t.shared.Add(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrSharedWrite, err)
	}
	return nil
}
