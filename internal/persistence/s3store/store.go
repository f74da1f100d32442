// internal/persistence/s3store/store.go
package s3store

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"robo-ingest/internal/jsonl"
	"robo-ingest/internal/model"
	"robo-ingest/internal/objectstore"
	"robo-ingest/internal/persistence"

	json "github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"
)

// Putter is the upload side of objectstore.S3Store.
type Putter interface {
	PutBytes(ctx context.Context, key string, body []byte, contentType string) error
}

var errClosed = errors.New("s3store: closed")

// Store
// ------------------------------------------------------------
// S3 를 persistence.Port 로 쓰는 backend.
//
//   - RecordEvent:     <prefix>/events/<ORIGIN>/<external_id>.json 에 PutObject.
//     같은 key 에 다시 쓰면 덮어쓰므로 그대로 upsert 가 된다.
//   - RecordFinancial: <prefix>/financial/dt=../hr=../<file>.jsonl.gz, 레코드당 객체 1개.
//   - Log:             logCh 로 넘기고 collectLoop 가 배치(BatchSize / FlushInterval)로
//     묶어 <prefix>/logs/dt=../hr=../<file>.jsonl.gz 로 업로드한다.
//
// Close 는 logCh 를 닫고 남은 배치까지 업로드될 때까지 기다린다.
type Store struct {
	put      Putter
	prefix   string
	instance string

	batchSize     int
	flushInterval time.Duration

	logCh chan model.LogRecord

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type Options struct {
	Prefix        string
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
}

var _ persistence.Port = (*Store)(nil)

// New starts the log collect loop.
func New(put Putter, opt Options) *Store {
	if opt.BatchSize <= 0 {
		opt.BatchSize = 500
	}
	if opt.FlushInterval <= 0 {
		opt.FlushInterval = 5 * time.Second
	}
	s := &Store{
		put:           put,
		prefix:        opt.Prefix,
		instance:      opt.InstanceID,
		batchSize:     opt.BatchSize,
		flushInterval: opt.FlushInterval,
		logCh:         make(chan model.LogRecord, opt.BatchSize*4),
	}
	s.wg.Add(1)
	go s.collectLoop()
	return s
}

// EventKey returns the object key an event is upserted under.
func (s *Store) EventKey(k model.DedupKey) string {
	return objectstore.Join(s.prefix, "events", string(k.Origin), url.PathEscape(k.ExternalID)+".json")
}

func (s *Store) RecordEvent(ctx context.Context, ev *model.NeutralEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.put.PutBytes(ctx, s.EventKey(ev.Key()), body, "application/json")
}

// financialRow 는 저장 표현. 금액은 문자열 2자리 (banker's rounding).
type financialRow struct {
	ExternalID string       `json:"external_id"`
	Origin     model.Origin `json:"origin"`
	Product    string       `json:"product"`
	Amount     string       `json:"amount"`
	Currency   string       `json:"currency"`
	Ts         time.Time    `json:"ts"`
}

func (s *Store) RecordFinancial(ctx context.Context, rec model.FinancialRecord) error {
	data, err := jsonl.EncodeGZ([]financialRow{{
		ExternalID: rec.ExternalID,
		Origin:     rec.Origin,
		Product:    rec.Product,
		Amount:     persistence.FormatAmount(rec.Amount),
		Currency:   rec.Currency,
		Ts:         rec.Ts.UTC(),
	}})
	if err != nil {
		return err
	}
	key := objectstore.PartitionKey(objectstore.Join(s.prefix, "financial"), objectstore.NewFilename(s.instance))
	return s.put.PutBytes(ctx, key, data, "application/gzip")
}

// Log 는 배치 큐에 넣기만 한다. 큐가 가득 차 있으면 ctx 가 끝날 때까지 기다린다.
func (s *Store) Log(ctx context.Context, rec model.LogRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	select {
	case s.logCh <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered log records. ctx bounds the wait.
func (s *Store) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.logCh)
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collectLoop 는 logCh 에서 레코드를 읽어 batch 로 묶는다.
// BatchSize 도달 또는 FlushInterval 타이머 만료 시 업로드한다.
// flush 는 항상 새 slice 를 만든다 (재사용 금지).
func (s *Store) collectLoop() {
	defer s.wg.Done()

	batch := make([]model.LogRecord, 0, s.batchSize)
	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.flushInterval)
	}

	flush := func() {
		if len(batch) > 0 {
			s.upload(batch)
			batch = make([]model.LogRecord, 0, s.batchSize)
		}
		reset()
	}

	for {
		select {
		case rec, ok := <-s.logCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-timer.C:
			flush()
		}
	}
}

func (s *Store) upload(batch []model.LogRecord) {
	data, err := jsonl.EncodeGZ(batch)
	if err != nil {
		zlog.Error().Err(err).Int("records", len(batch)).Msg("audit batch encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := objectstore.PartitionKey(objectstore.Join(s.prefix, "logs"), objectstore.NewFilename(s.instance))
	if err := s.put.PutBytes(ctx, key, data, "application/gzip"); err != nil {
		// stdout 감사 줄은 이미 나갔으므로 영속 사본만 잃는다.
		zlog.Error().Err(err).Str("key", key).Int("records", len(batch)).Msg("audit batch upload failed")
		return
	}
	zlog.Debug().Str("key", key).Int("records", len(batch)).Msg("audit batch uploaded")
}
