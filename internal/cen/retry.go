package cen

import (
	"container/heap"
	"time"

	"robo-ingest/internal/model"
)

// pending 은 CEN 이 소유한 이벤트 1건의 배달 상태.
type pending struct {
	ev         model.NeutralEvent
	firstID    string // Admit 가 돌려준 delivery_id (attempt 1 에서만 사용)
	attempts   int
	enqueuedAt time.Time
	due        time.Time
	lastErr    string

	index int
}

// retryHeap 은 due 가 가장 빠른 pending 이 top 인 min-heap.
// dispatcher goroutine 만 건드리므로 잠금이 없다.
type retryHeap []*pending

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	p := x.(*pending)
	p.index = len(*h)
	*h = append(*h, p)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*h = old[:n-1]
	return p
}

func (h *retryHeap) push(p *pending) { heap.Push(h, p) }
func (h *retryHeap) pop() *pending  { return heap.Pop(h).(*pending) }
func (h retryHeap) peek() *pending  { return h[0] }

// Backoff
// ------------------------------------------------------------
// n 번째 재시도(0 부터) 대기 시간: min(Base·2^n, Cap) 에 ±Jitter 비율을 곱한다.
// r 은 [0,1) 난수.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

func (b Backoff) Delay(n int, r float64) time.Duration {
	if n < 0 {
		n = 0
	}
	d := b.Base
	for i := 0; i < n && d < b.Cap; i++ {
		d *= 2
	}
	if d > b.Cap {
		d = b.Cap
	}
	if b.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + b.Jitter*(2*r-1)))
	}
	if d < 0 {
		d = 0
	}
	return d
}
