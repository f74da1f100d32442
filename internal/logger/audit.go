// internal/logger/audit.go
package logger

import (
	"context"
	"io"
	"sync"
	"time"

	"robo-ingest/internal/model"
	"robo-ingest/internal/timecache"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// TimestampFormat 은 감사 로그 계약의 timestamp 형식.
// RFC 3339 UTC + 항상 소수점 이하 6자리 (RFC3339Nano 는 뒤쪽 0 을 잘라버린다).
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Sink 는 감사 레코드를 영속화하는 쪽 (persistence.Port 가 만족한다).
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord) error
}

// Audit
// ------------------------------------------------------------
// 감사 로그 writer.
//
//   - stdout 에 한 줄 JSON: {timestamp, origem, nivel, mensagem, extra?}
//   - 같은 레코드를 Sink 로 순서대로 전달 (fire-and-forget, 별도 goroutine)
//
// timestamp 발급과 stdout 쓰기를 같은 mutex 안에서 하므로
// 먼저 쓰인 줄의 timestamp 는 나중 줄보다 항상 작거나 같다.
//
// Sink 전달 큐가 가득 차면 영속 사본만 버리고 운영 로그에 WARN 을 남긴다.
// stdout 감사 줄은 절대 버리지 않는다.
type Audit struct {
	mu    sync.Mutex
	out   zerolog.Logger
	clock *timecache.Monotonic

	sink    Sink
	timeout time.Duration
	queue   chan model.LogRecord
	closed  bool
	done    chan struct{}
	once    sync.Once
}

const auditQueueSize = 4096

// NewAudit writes audit lines to w and forwards every record to sink (may be nil).
func NewAudit(w io.Writer, sink Sink, clock *timecache.Monotonic) *Audit {
	if clock == nil {
		clock = timecache.NewMonotonic(nil)
	}
	a := &Audit{
		out:     zerolog.New(w),
		clock:   clock,
		sink:    sink,
		timeout: 5 * time.Second,
		queue:   make(chan model.LogRecord, auditQueueSize),
		done:    make(chan struct{}),
	}
	go a.forward()
	return a
}

func (a *Audit) Info(origin, msg string, extra map[string]any) model.LogRecord {
	return a.Write(origin, model.LevelInfo, msg, extra)
}

func (a *Audit) Warn(origin, msg string, extra map[string]any) model.LogRecord {
	return a.Write(origin, model.LevelWarn, msg, extra)
}

func (a *Audit) Error(origin, msg string, extra map[string]any) model.LogRecord {
	return a.Write(origin, model.LevelError, msg, extra)
}

// Write stamps, prints and forwards one record.
func (a *Audit) Write(origin string, level model.Level, msg string, extra map[string]any) model.LogRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := model.LogRecord{
		Ts:      a.clock.Now(),
		Origin:  origin,
		Level:   level,
		Message: msg,
		Extra:   extra,
	}

	ev := a.out.Log().
		Str("timestamp", rec.Ts.Format(TimestampFormat)).
		Str("origem", rec.Origin).
		Str("nivel", string(rec.Level)).
		Str("mensagem", rec.Message)
	if len(extra) > 0 {
		ev = ev.Interface("extra", extra)
	}
	ev.Send()

	if a.sink != nil && !a.closed {
		select {
		case a.queue <- rec:
		default:
			zlog.Warn().Str("origem", origin).Msg("audit sink queue full, persistent copy dropped")
		}
	}
	return rec
}

func (a *Audit) forward() {
	defer close(a.done)
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Log(ctx, rec); err != nil {
			zlog.Warn().Err(err).Str("origem", rec.Origin).Msg("audit sink write failed")
		}
		cancel()
	}
}

// Close stops accepting records and waits until the sink received every queued one.
func (a *Audit) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}
