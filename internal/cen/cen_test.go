package cen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/logger"
	"robo-ingest/internal/metrics"
	"robo-ingest/internal/model"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

type memSink struct {
	mu  sync.Mutex
	dls []model.DeadLetter
}

func (s *memSink) Write(_ context.Context, dl model.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dls = append(s.dls, dl)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) snapshot() []model.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DeadLetter(nil), s.dls...)
}

type funcDeliverer func(ctx context.Context, d model.InboundDelivery) (model.ReceiveResult, error)

func (f funcDeliverer) Deliver(ctx context.Context, d model.InboundDelivery) (model.ReceiveResult, error) {
	return f(ctx, d)
}

func newTestCEN(t *testing.T, d Deliverer, opt Options) (*CEN, *memSink, *metrics.Metrics) {
	t.Helper()
	sink := &memSink{}
	m := metrics.NewNop()
	audit := logger.NewAudit(io.Discard, nil, nil)
	t.Cleanup(audit.Close)
	if opt.Backoff.Base == 0 {
		opt.Backoff = Backoff{Base: time.Millisecond, Cap: 4 * time.Millisecond, Jitter: 0.2}
	}
	if opt.DeliveryTimeout == 0 {
		opt.DeliveryTimeout = time.Second
	}
	return New(d, sink, audit, m, opt), sink, m
}

func ev(id string) *model.NeutralEvent {
	return &model.NeutralEvent{
		Origin:     model.OriginClickBank,
		ExternalID: id,
		Financial:  model.Financial{Amount: decimal.RequireFromString("49.95"), Currency: "USD"},
		IngestedAt: time.Now().UTC(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func ok(context.Context, model.InboundDelivery) (model.ReceiveResult, error) {
	return model.ReceiveResult{Admitted: true}, nil
}

func TestAdmitShapeValidation(t *testing.T) {
	c, _, _ := newTestCEN(t, funcDeliverer(ok), Options{Backlog: 4})

	bad := ev("x")
	bad.Origin = "PAYPAL"
	empty := ev("")
	neg := ev("n")
	neg.Financial.Amount = decimal.NewFromInt(-1)

	cases := []struct {
		name string
		ev   *model.NeutralEvent
		want int
	}{
		{"origin", bad, http.StatusUnprocessableEntity},
		{"external_id", empty, http.StatusUnprocessableEntity},
		{"amount", neg, http.StatusBadRequest},
	}
	for _, tc := range cases {
		_, err := c.Admit(context.Background(), tc.ev)
		if got := apperr.HTTPStatus(err); got != tc.want {
			t.Errorf("%s: status = %d, want %d (%v)", tc.name, got, tc.want, err)
		}
	}
	if c.InUse() != 0 {
		t.Fatal("rejected events must not take backlog slots")
	}
}

func TestBackpressureAndNoSilentDrop(t *testing.T) {
	var mu sync.Mutex
	delivered := map[string]int{}
	d := funcDeliverer(func(_ context.Context, in model.InboundDelivery) (model.ReceiveResult, error) {
		mu.Lock()
		delivered[in.Event.ExternalID]++
		mu.Unlock()
		return model.ReceiveResult{Admitted: true}, nil
	})
	c, sink, m := newTestCEN(t, d, Options{Backlog: 3})

	// dispatcher not started yet: the backlog fills up
	for i := 0; i < 3; i++ {
		if _, err := c.Admit(context.Background(), ev(fmt.Sprintf("e%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	_, err := c.Admit(context.Background(), ev("overflow"))
	if !errors.Is(err, apperr.ErrBackpressure) || apperr.HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want backpressure 503", err)
	}
	if got := testutil.ToFloat64(m.BackpressureTotal); got != 1 {
		t.Fatalf("backpressure metric = %v", got)
	}

	c.Start()
	waitFor(t, "backlog drain", func() bool { return c.InUse() == 0 })
	_ = c.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		if delivered[fmt.Sprintf("e%d", i)] != 1 {
			t.Fatalf("e%d delivered %d times", i, delivered[fmt.Sprintf("e%d", i)])
		}
	}
	if delivered["overflow"] != 0 || len(sink.snapshot()) != 0 {
		t.Fatal("rejected event leaked into the pipeline")
	}
}

func TestRetryPendingCountsAgainstBacklog(t *testing.T) {
	fail := funcDeliverer(func(context.Context, model.InboundDelivery) (model.ReceiveResult, error) {
		return model.ReceiveResult{}, apperr.ErrTransient
	})
	c, _, _ := newTestCEN(t, fail, Options{
		Backlog: 1,
		Backoff: Backoff{Base: time.Hour, Cap: time.Hour},
		Budget:  48 * time.Hour,
	})
	c.Start()
	defer c.Close(context.Background())

	if _, err := c.Admit(context.Background(), ev("a")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first attempt", func() bool { return len(c.queue) == 0 })
	if _, err := c.Admit(context.Background(), ev("b")); !errors.Is(err, apperr.ErrBackpressure) {
		t.Fatalf("err = %v, want backpressure while a waits for retry", err)
	}
}

// Property: a forever-failing downstream yields exactly one dead-letter per event.
func TestRetryBudgetExactlyOneDeadLetter(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}
	fail := funcDeliverer(func(_ context.Context, in model.InboundDelivery) (model.ReceiveResult, error) {
		mu.Lock()
		attempts[in.Event.ExternalID]++
		mu.Unlock()
		return model.ReceiveResult{}, errors.New("connection refused")
	})
	c, sink, m := newTestCEN(t, fail, Options{Backlog: 16, Budget: 40 * time.Millisecond})
	c.Start()

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := c.Admit(context.Background(), ev(fmt.Sprintf("f%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "dead letters", func() bool { return c.InUse() == 0 })
	time.Sleep(20 * time.Millisecond)
	_ = c.Close(context.Background())

	dls := sink.snapshot()
	if len(dls) != n {
		t.Fatalf("dead letters = %d, want %d", len(dls), n)
	}
	seen := map[string]bool{}
	for _, dl := range dls {
		id := dl.Event.ExternalID
		if seen[id] {
			t.Fatalf("%s dead-lettered twice", id)
		}
		seen[id] = true
		if dl.Reason != model.DeadLetterBudgetExhausted {
			t.Fatalf("reason = %s", dl.Reason)
		}
		if dl.Attempts < 2 || dl.LastError == "" {
			t.Fatalf("dl = %+v, want several attempts and the last error", dl)
		}
		mu.Lock()
		if attempts[id] != dl.Attempts {
			t.Fatalf("%s: recorded %d attempts, made %d", id, dl.Attempts, attempts[id])
		}
		mu.Unlock()
		if dl.DeadLetteredAt.Sub(dl.FirstAttemptAt) > 40*time.Millisecond+50*time.Millisecond {
			t.Fatalf("budget overrun: %s", dl.DeadLetteredAt.Sub(dl.FirstAttemptAt))
		}
	}
	if got := testutil.ToFloat64(m.DeadLettersTotal.WithLabelValues(model.DeadLetterBudgetExhausted)); got != n {
		t.Fatalf("metric = %v", got)
	}
}

func TestPermanentFailureSkipsRetry(t *testing.T) {
	calls := 0
	perm := funcDeliverer(func(context.Context, model.InboundDelivery) (model.ReceiveResult, error) {
		calls++
		return model.ReceiveResult{}, fmt.Errorf("%w: bad currency", apperr.ErrPermanent)
	})
	c, sink, _ := newTestCEN(t, perm, Options{Backlog: 4})
	c.Start()

	_, _ = c.Admit(context.Background(), ev("p"))
	waitFor(t, "dead letter", func() bool { return len(sink.snapshot()) == 1 })
	_ = c.Close(context.Background())

	dl := sink.snapshot()[0]
	if dl.Reason != model.DeadLetterPermanent || dl.Attempts != 1 || calls != 1 {
		t.Fatalf("dl = %+v calls = %d", dl, calls)
	}
}

func TestRetryUsesFreshDeliveryIDs(t *testing.T) {
	var mu sync.Mutex
	var seen []model.InboundDelivery
	d := funcDeliverer(func(_ context.Context, in model.InboundDelivery) (model.ReceiveResult, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, in)
		if len(seen) < 3 {
			return model.ReceiveResult{}, apperr.ErrTransient
		}
		return model.ReceiveResult{Admitted: true}, nil
	})
	c, sink, _ := newTestCEN(t, d, Options{Backlog: 4})
	c.Start()

	res, err := c.Admit(context.Background(), ev("r"))
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delivery", func() bool { return c.InUse() == 0 })
	_ = c.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("attempts = %d", len(seen))
	}
	if seen[0].DeliveryID != res.DeliveryID {
		t.Fatal("first attempt must carry the admitted delivery_id")
	}
	ids := map[string]bool{}
	for i, in := range seen {
		if in.Attempt != i+1 {
			t.Fatalf("attempt[%d] = %d", i, in.Attempt)
		}
		ids[in.DeliveryID] = true
	}
	if len(ids) != 3 {
		t.Fatal("delivery_id reused across attempts")
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("successful event dead-lettered")
	}
}

func TestShutdownDeadLettersPending(t *testing.T) {
	fail := funcDeliverer(func(context.Context, model.InboundDelivery) (model.ReceiveResult, error) {
		return model.ReceiveResult{}, apperr.ErrTransient
	})
	c, sink, _ := newTestCEN(t, fail, Options{
		Backlog: 8,
		Backoff: Backoff{Base: time.Hour, Cap: time.Hour},
	})
	c.Start()
	for i := 0; i < 3; i++ {
		_, _ = c.Admit(context.Background(), ev(fmt.Sprintf("s%d", i)))
	}
	waitFor(t, "first attempts", func() bool { return len(c.queue) == 0 })
	time.Sleep(5 * time.Millisecond)

	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	dls := sink.snapshot()
	if len(dls) != 3 {
		t.Fatalf("dead letters = %d, want 3", len(dls))
	}
	for _, dl := range dls {
		if dl.Reason != model.DeadLetterShutdown {
			t.Fatalf("reason = %s", dl.Reason)
		}
	}
	if _, err := c.Admit(context.Background(), ev("late")); !errors.Is(err, apperr.ErrBackpressure) {
		t.Fatalf("admit after close = %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 60 * time.Second}
	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}
	for n, w := range want {
		if got := b.Delay(n, 0.5); got != w*time.Second {
			t.Errorf("Delay(%d) = %s, want %s", n, got, w*time.Second)
		}
	}
	if got := b.Delay(500, 0.5); got != 60*time.Second {
		t.Errorf("Delay(500) = %s", got)
	}

	j := Backoff{Base: time.Second, Cap: 60 * time.Second, Jitter: 0.2}
	if lo := j.Delay(0, 0); lo != 800*time.Millisecond {
		t.Errorf("low jitter = %s", lo)
	}
	if hi := j.Delay(0, 0.999999); hi < 1199*time.Millisecond || hi > 1200*time.Millisecond {
		t.Errorf("high jitter = %s", hi)
	}
}

func TestHTTPDelivererStatusMapping(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in model.InboundDelivery
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Event.ExternalID != "h" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		code := int(status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"admitted":false,"reason":"duplicate"}`))
		}
	}))
	defer srv.Close()

	h := NewHTTPDeliverer(srv.URL, "tok", srv.Client())
	d := model.InboundDelivery{DeliveryID: "x", Event: *ev("h"), Attempt: 1}

	res, err := h.Deliver(context.Background(), d)
	if err != nil || res.Reason != model.ReasonDuplicate {
		t.Fatalf("200 → %+v, %v", res, err)
	}

	status.Store(http.StatusUnprocessableEntity)
	if _, err := h.Deliver(context.Background(), d); !apperr.IsPermanent(err) {
		t.Fatalf("422 → %v", err)
	}

	status.Store(http.StatusInternalServerError)
	if _, err := h.Deliver(context.Background(), d); !apperr.IsTransient(err) || apperr.IsPermanent(err) {
		t.Fatalf("500 → %v", err)
	}

	if _, err := NewHTTPDeliverer(srv.URL, "nope", srv.Client()).Deliver(context.Background(), d); !apperr.IsTransient(err) {
		t.Fatalf("401 → %v", err)
	}
}

type lockedWriter struct {
	mu  sync.Mutex
	buf []byte
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *lockedWriter) lines() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []map[string]any
	for _, l := range bytes.Split(bytes.TrimSpace(w.buf), []byte("\n")) {
		var m map[string]any
		if json.Unmarshal(l, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestEnqueueLineBeforeDelivery(t *testing.T) {
	out := &lockedWriter{}
	audit := logger.NewAudit(out, nil, nil)
	defer audit.Close()

	var delivered atomic.Int32
	d := funcDeliverer(func(_ context.Context, del model.InboundDelivery) (model.ReceiveResult, error) {
		audit.Info(model.LogOriginReceiver, "delivered", map[string]any{"id": del.Event.ExternalID})
		delivered.Add(1)
		return model.ReceiveResult{Admitted: true}, nil
	})
	c := New(d, &memSink{}, audit, metrics.NewNop(), Options{Backlog: 64, DeliveryTimeout: time.Second})
	c.Start()
	defer c.Close(context.Background())

	const n = 50
	for i := 0; i < n; i++ {
		if _, err := c.Admit(context.Background(), ev(fmt.Sprintf("E-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "deliveries", func() bool { return delivered.Load() == n })

	enqueued := map[string]bool{}
	for _, l := range out.lines() {
		extra, _ := l["extra"].(map[string]any)
		id, _ := extra["id"].(string)
		switch l["mensagem"] {
		case "Evento enfileirado":
			enqueued[id] = true
		case "delivered":
			if !enqueued[id] {
				t.Fatalf("%s delivered before its enqueue line", id)
			}
		}
	}
}
