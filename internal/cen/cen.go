// internal/cen/cen.go
package cen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/deadletter"
	"robo-ingest/internal/logger"
	"robo-ingest/internal/metrics"
	"robo-ingest/internal/model"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Deliverer 는 Receiver 로 가는 단일 배달 경로.
// in-process (receiver.Local) 또는 HTTP (HTTPDeliverer).
type Deliverer interface {
	Deliver(ctx context.Context, d model.InboundDelivery) (model.ReceiveResult, error)
}

type Options struct {
	Backlog         int
	Backoff         Backoff
	Budget          time.Duration // 첫 enqueue 부터의 재시도 총 예산
	DeliveryTimeout time.Duration
}

// CEN
// ------------------------------------------------------------
// 어댑터와 Receiver 사이의 중립 이벤트 계층.
//
//   - Admit: 형태 검증 → backlog 자리 예약 → delivery_id 발급 → 감사 로그 → enqueue.
//     어댑터 goroutine 에서 동기로 호출되며 I/O 를 하지 않는다.
//   - dispatcher: goroutine 1개. Receiver 호출, 재시도 예약, dead-letter 를 모두 여기서 한다.
//
// backlog B 는 queue 에 있는 이벤트 + 재시도 대기 이벤트를 합친 수(inflight)로 센다.
// B 에 도달하면 Admit 는 ErrBackpressure 를 돌려준다. 조용히 버리는 경로는 없다.
type CEN struct {
	deliverer Deliverer
	sink      deadletter.Sink
	audit     *logger.Audit
	metrics   *metrics.Metrics
	opt       Options

	now   func() time.Time
	newID func() string
	rand  func() float64

	queue    chan *pending
	inflight atomic.Int64

	mu     sync.RWMutex
	closed bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(d Deliverer, sink deadletter.Sink, audit *logger.Audit, m *metrics.Metrics, opt Options) *CEN {
	if opt.Backlog <= 0 {
		opt.Backlog = 1024
	}
	if opt.DeliveryTimeout <= 0 {
		opt.DeliveryTimeout = 15 * time.Second
	}
	if opt.Budget <= 0 {
		opt.Budget = 24 * time.Hour
	}
	return &CEN{
		deliverer: d,
		sink:      sink,
		audit:     audit,
		metrics:   m,
		opt:       opt,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
		rand:      rand.Float64,
		queue:     make(chan *pending, opt.Backlog),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine.
func (c *CEN) Start() {
	go c.dispatch()
}

// Admit takes ownership of ev or rejects it synchronously.
// ctx 는 호출자 쪽 수명이다. enqueue 이후에는 ctx 가 취소돼도 배달은 계속된다.
func (c *CEN) Admit(_ context.Context, ev *model.NeutralEvent) (model.AdmitResult, error) {
	switch {
	case ev == nil:
		return model.AdmitResult{}, fmt.Errorf("%w: nil event", apperr.ErrInvalidEvent)
	case !ev.Origin.Valid():
		return model.AdmitResult{}, fmt.Errorf("%w: unknown origin %q", apperr.ErrInvalidEvent, ev.Origin)
	case ev.ExternalID == "":
		return model.AdmitResult{}, fmt.Errorf("%w: empty external_id", apperr.ErrInvalidEvent)
	case ev.Financial.Amount.IsNegative():
		return model.AdmitResult{}, fmt.Errorf("%w: negative amount", apperr.ErrMalformedPayload)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return model.AdmitResult{}, fmt.Errorf("%w: shutting down", apperr.ErrBackpressure)
	}

	if !c.reserve() {
		c.metrics.BackpressureTotal.Inc()
		c.audit.Warn(model.LogOriginCEN, "Backlog cheio, evento recusado", map[string]any{
			"id":      ev.ExternalID,
			"origin":  string(ev.Origin),
			"backlog": c.opt.Backlog,
		})
		return model.AdmitResult{}, apperr.ErrBackpressure
	}

	p := &pending{
		ev:         *ev,
		firstID:    c.newID(),
		enqueuedAt: c.now(),
	}

	// 감사 줄은 send 전에 쓴다. send 직후 dispatcher 가 먼저 배달할 수 있다.
	c.metrics.AdmittedTotal.WithLabelValues(string(ev.Origin)).Inc()
	c.audit.Info(model.LogOriginCEN, "Evento enfileirado", map[string]any{
		"id":          ev.ExternalID,
		"origin":      string(ev.Origin),
		"delivery_id": p.firstID,
	})

	// 채널 용량 == B 이고 자리를 예약했으므로 막히지 않는다.
	c.queue <- p

	return model.AdmitResult{DeliveryID: p.firstID, EnqueuedAt: p.enqueuedAt}, nil
}

// InUse returns queued plus retry-pending events.
func (c *CEN) InUse() int64 { return c.inflight.Load() }

// Capacity returns B.
func (c *CEN) Capacity() int { return c.opt.Backlog }

func (c *CEN) reserve() bool {
	for {
		n := c.inflight.Load()
		if n >= int64(c.opt.Backlog) {
			return false
		}
		if c.inflight.CompareAndSwap(n, n+1) {
			c.metrics.BacklogInUse.Set(float64(n + 1))
			return true
		}
	}
}

func (c *CEN) release() {
	c.metrics.BacklogInUse.Set(float64(c.inflight.Add(-1)))
}

// Close
// ------------------------------------------------------------
// 1. 새 Admit 차단
// 2. dispatcher 종료 신호. 진행 중인 1건은 끝까지 시도한다.
// 3. queue / 재시도 대기 이벤트를 reason=shutdown 으로 dead-letter
//
// ctx 가 먼저 끝나면 ctx.Err() 를 돌려준다 (dispatcher 는 계속 drain 한다).
func (c *CEN) Close(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch 는 모든 outbound I/O 를 하는 유일한 goroutine.
func (c *CEN) dispatch() {
	defer close(c.done)

	var retries retryHeap

	for {
		var (
			timer *time.Timer
			wake  <-chan time.Time
		)
		if retries.Len() > 0 {
			d := retries.peek().due.Sub(c.now())
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			wake = timer.C
		}

		select {
		case <-c.stop:
			if timer != nil {
				timer.Stop()
			}
			c.drain(&retries)
			return

		case p := <-c.queue:
			c.attempt(p, &retries)

		case <-wake:
			now := c.now()
			for retries.Len() > 0 && !retries.peek().due.After(now) {
				c.attempt(retries.pop(), &retries)
			}
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

func (c *CEN) attempt(p *pending, retries *retryHeap) {
	p.attempts++
	id := p.firstID
	if p.attempts > 1 {
		id = c.newID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opt.DeliveryTimeout)
	res, err := c.deliverer.Deliver(ctx, model.InboundDelivery{
		DeliveryID: id,
		Event:      p.ev,
		Attempt:    p.attempts,
	})
	cancel()

	switch {
	case err == nil:
		outcome := "admitted"
		if !res.Admitted {
			outcome = "duplicate"
		}
		c.metrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
		c.release()

	case apperr.IsPermanent(err):
		c.metrics.DeliveriesTotal.WithLabelValues("permanent").Inc()
		p.lastErr = err.Error()
		c.deadLetter(p, model.DeadLetterPermanent)

	default:
		c.metrics.DeliveriesTotal.WithLabelValues("transient").Inc()
		p.lastErr = err.Error()

		now := c.now()
		due := now.Add(c.opt.Backoff.Delay(p.attempts-1, c.rand()))
		if due.Sub(p.enqueuedAt) > c.opt.Budget {
			c.deadLetter(p, model.DeadLetterBudgetExhausted)
			return
		}
		p.due = due
		retries.push(p)
		c.metrics.RetriesScheduled.Inc()
		zlog.Debug().
			Str("id", p.ev.ExternalID).
			Int("attempt", p.attempts).
			Time("due", due).
			Err(err).
			Msg("delivery failed, retry scheduled")
	}
}

// drain 은 shutdown 시 남은 이벤트를 모두 dead-letter 로 보낸다.
func (c *CEN) drain(retries *retryHeap) {
	for {
		select {
		case p := <-c.queue:
			c.deadLetter(p, model.DeadLetterShutdown)
			continue
		default:
		}
		break
	}
	for retries.Len() > 0 {
		c.deadLetter(retries.pop(), model.DeadLetterShutdown)
	}
}

// deadLetter 는 이벤트당 정확히 한 번 호출된다 (호출 후 p 는 더 이상 어디에도 없다).
func (c *CEN) deadLetter(p *pending, reason string) {
	defer c.release()

	dl := model.DeadLetter{
		Event:          p.ev,
		Attempts:       p.attempts,
		FirstAttemptAt: p.enqueuedAt,
		DeadLetteredAt: c.now(),
		Reason:         reason,
		LastError:      p.lastErr,
	}
	c.metrics.DeadLettersTotal.WithLabelValues(reason).Inc()

	extra := map[string]any{
		"id":       p.ev.ExternalID,
		"origin":   string(p.ev.Origin),
		"attempts": p.attempts,
		"reason":   reason,
	}
	if p.lastErr != "" {
		extra["last_error"] = p.lastErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.sink.Write(ctx, dl); err != nil {
		// sink 가 받지 못하면 감사 로그가 유일한 사본이다.
		extra["dead_letter"] = dl
		extra["sink_error"] = err.Error()
		if errors.Is(err, deadletter.ErrFull) {
			extra["sink_full"] = true
		}
	}
	c.audit.Error(model.LogOriginCEN, "Evento enviado para dead-letter", extra)
}
