// internal/timecache/timecache.go
package timecache

import (
	"sync"
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// 매초 현재 UTC epoch seconds 와 UTC 기준 날짜/시간 파티션을 캐싱한다.
//
// 사용처:
//   - dead-letter / S3 객체 파일명 prefix (<unix>_...)
//   - S3 파티션 prefix (dt=YYYY-MM-DD / hr=HH)
//
// 이벤트 ingested_at 과 감사 로그 timestamp 는 초단위로는 부족하므로
// 아래 Monotonic 을 쓴다.
// ------------------------------------------------------------

var (
	unixSec atomic.Int64

	dtVal atomic.Value // "YYYY-MM-DD"
	hrVal atomic.Value // "HH"
)

func init() {
	update()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			update()
		}
	}()
}

func update() {
	now := time.Now().UTC()
	unixSec.Store(now.Unix())
	dtVal.Store(now.Format("2006-01-02"))
	hrVal.Store(now.Format("15"))
}

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns "YYYY-MM-DD" (UTC).
func DT() string {
	return dtVal.Load().(string)
}

// HR returns "HH" (UTC).
func HR() string {
	return hrVal.Load().(string)
}

// Monotonic
// ------------------------------------------------------------
// 벽시계(UTC)를 돌려주되, 이전에 돌려준 값보다 작아지지 않는다.
// NTP 보정 등으로 시계가 뒤로 가도 감사 로그 순서와
// 어댑터별 ingested_at 단조성이 깨지지 않게 한다.
type Monotonic struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMonotonic returns a clock backed by now (time.Now when nil).
func NewMonotonic(now func() time.Time) *Monotonic {
	if now == nil {
		now = time.Now
	}
	return &Monotonic{now: now}
}

func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now().UTC()
	if t.Before(m.last) {
		t = m.last
	}
	m.last = t
	return t
}
