// internal/receiver/receiver.go
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/dedup"
	"robo-ingest/internal/logger"
	"robo-ingest/internal/metrics"
	"robo-ingest/internal/model"
	"robo-ingest/internal/persistence"
)

// Motor is the part of the Motor the Receiver drives.
type Motor interface {
	Validate(ev *model.NeutralEvent) error
	Ingest(ev *model.NeutralEvent) error
}

// Receiver
// ------------------------------------------------------------
// CEN dispatcher 가 호출하는 내부 endpoint.
// Motor 상태를 바꿀 수 있는 유일한 컴포넌트다.
//
// 처리 순서 (miss 기준):
//  1. in-flight 잠금: 같은 key 가 처리 중이면 transient ("in flight")
//  2. dedup 조회: hit → {admitted:false, reason:"duplicate"}
//  3. Motor.Validate: 위반 → permanent (dedup insert 없음)
//  4. persistence: RecordEvent(upsert) → RecordFinancial(insert), PersistTimeout
//     실패 → transient, Motor 변경 없음, dedup insert 없음
//  5. Motor.Ingest
//  6. dedup insert: 공유 tier 실패 → ERROR + reconciliation marker (admitted 유지)
type Receiver struct {
	motor   Motor
	index   dedup.Index
	store   persistence.Port
	audit   *logger.Audit
	metrics *metrics.Metrics

	persistTimeout time.Duration

	mu       sync.Mutex
	inflight map[model.DedupKey]struct{}
}

type Options struct {
	PersistTimeout time.Duration
}

func New(m Motor, idx dedup.Index, store persistence.Port, audit *logger.Audit, met *metrics.Metrics, opt Options) *Receiver {
	if opt.PersistTimeout <= 0 {
		opt.PersistTimeout = 5 * time.Second
	}
	return &Receiver{
		motor:          m,
		index:          idx,
		store:          store,
		audit:          audit,
		metrics:        met,
		persistTimeout: opt.PersistTimeout,
		inflight:       make(map[model.DedupKey]struct{}),
	}
}

// ErrInFlight is returned when the same key is already being admitted.
var ErrInFlight = fmt.Errorf("%w: key in flight", apperr.ErrTransient)

// Receive admits d at most once per (origin, external_id).
func (r *Receiver) Receive(ctx context.Context, d model.InboundDelivery) (model.ReceiveResult, error) {
	ev := &d.Event
	key := ev.Key()

	if !r.acquire(key) {
		return model.ReceiveResult{}, ErrInFlight
	}
	defer r.release(key)

	// --- 1) dedup ---
	seen, err := r.index.Contains(ctx, key)
	if err != nil {
		return model.ReceiveResult{}, fmt.Errorf("%w: dedup lookup: %w", apperr.ErrTransient, err)
	}
	if seen {
		r.metrics.DuplicatesTotal.Inc()
		r.audit.Info(model.LogOriginReceiver, "Evento duplicado ignorado", map[string]any{
			"id":          ev.ExternalID,
			"origin":      string(ev.Origin),
			"delivery_id": d.DeliveryID,
			"reason":      model.ReasonDuplicate,
		})
		return model.ReceiveResult{Admitted: false, Reason: model.ReasonDuplicate}, nil
	}

	// --- 2) Motor invariant ---
	if err := r.motor.Validate(ev); err != nil {
		r.audit.Error(model.LogOriginReceiver, "Evento rejeitado pelo motor", map[string]any{
			"id":          ev.ExternalID,
			"origin":      string(ev.Origin),
			"delivery_id": d.DeliveryID,
			"error":       err.Error(),
		})
		return model.ReceiveResult{}, err
	}

	// --- 3) persistence (Motor 변경 전에) ---
	if err := r.persist(ctx, ev); err != nil {
		r.metrics.PersistenceErrorsTotal.Inc()
		r.audit.Error(model.LogOriginReceiver, "Falha ao persistir evento", map[string]any{
			"id":          ev.ExternalID,
			"origin":      string(ev.Origin),
			"delivery_id": d.DeliveryID,
			"error":       err.Error(),
		})
		return model.ReceiveResult{}, fmt.Errorf("%w: persist: %w", apperr.ErrTransient, err)
	}

	// --- 4) Motor ---
	if err := r.motor.Ingest(ev); err != nil {
		return model.ReceiveResult{}, err
	}

	// --- 5) dedup insert ---
	if err := r.index.Add(ctx, key); err != nil {
		// Motor 는 이미 바뀌었다. 되돌리지 않고 운영자가 맞출 수 있도록 표시만 남긴다.
		r.metrics.ReconciliationMarkersTotal.Inc()
		r.audit.Error(model.LogOriginReceiver, "Reconciliacao necessaria", map[string]any{
			"id":          ev.ExternalID,
			"origin":      string(ev.Origin),
			"delivery_id": d.DeliveryID,
			"marker":      "reconciliation",
			"shared":      errors.Is(err, dedup.ErrSharedWrite),
			"error":       err.Error(),
		})
	}

	r.audit.Info(model.LogOriginReceiver, "Evento admitido", map[string]any{
		"id":          ev.ExternalID,
		"origin":      string(ev.Origin),
		"delivery_id": d.DeliveryID,
		"attempt":     d.Attempt,
	})
	return model.ReceiveResult{Admitted: true}, nil
}

func (r *Receiver) persist(ctx context.Context, ev *model.NeutralEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	if err := r.store.RecordEvent(ctx, ev); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if err := r.store.RecordFinancial(ctx, persistence.NewFinancialRecord(ev)); err != nil {
		return fmt.Errorf("record financial: %w", err)
	}
	return nil
}

func (r *Receiver) acquire(k model.DedupKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[k]; busy {
		return false
	}
	r.inflight[k] = struct{}{}
	return true
}

func (r *Receiver) release(k model.DedupKey) {
	r.mu.Lock()
	delete(r.inflight, k)
	r.mu.Unlock()
}
