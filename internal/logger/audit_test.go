package logger

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"robo-ingest/internal/model"
	"robo-ingest/internal/timecache"

	json "github.com/goccy/go-json"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []model.LogRecord
}

func (s *recordingSink) Log(_ context.Context, rec model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestAuditLineContract(t *testing.T) {
	var out syncBuffer
	sink := &recordingSink{}
	a := NewAudit(&out, sink, nil)

	a.Info("HOTMART", "Evento recebido", map[string]any{"id": "T-1"})
	a.Warn("EDUZZ", "Assinatura inválida", nil)
	a.Close()

	lines := strings.Split(strings.TrimSpace(out.buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.buf.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	for _, k := range []string{"timestamp", "origem", "nivel", "mensagem", "extra"} {
		if _, ok := first[k]; !ok {
			t.Fatalf("missing key %q in %s", k, lines[0])
		}
	}
	if first["nivel"] != "INFO" || first["origem"] != "HOTMART" || first["mensagem"] != "Evento recebido" {
		t.Fatalf("unexpected audit line: %s", lines[0])
	}
	ts, err := time.Parse(time.RFC3339Nano, first["timestamp"].(string))
	if err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
	if ts.Location() != time.UTC {
		t.Fatalf("timestamp not UTC: %s", first["timestamp"])
	}
	if !strings.Contains(first["timestamp"].(string), ".") {
		t.Fatalf("timestamp has no fractional seconds: %s", first["timestamp"])
	}

	var second map[string]any
	_ = json.Unmarshal([]byte(lines[1]), &second)
	if _, ok := second["extra"]; ok {
		t.Fatalf("extra must be omitted when empty: %s", lines[1])
	}

	if len(sink.recs) != 2 || sink.recs[0].Message != "Evento recebido" {
		t.Fatalf("sink did not receive records in order: %+v", sink.recs)
	}
}

// Property: for writes a before b, a.timestamp <= b.timestamp, even when
// the wall clock steps backwards and writers run concurrently.
func TestAuditTimestampsNonDecreasing(t *testing.T) {
	var out syncBuffer
	var mu sync.Mutex
	n := 0
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timecache.NewMonotonic(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		// jitter the clock backwards every third read
		if n%3 == 0 {
			return base.Add(time.Duration(n-10) * time.Millisecond)
		}
		return base.Add(time.Duration(n) * time.Millisecond)
	})
	a := NewAudit(&out, nil, clock)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				a.Info(model.LogOriginSystem, "tick", nil)
			}
		}()
	}
	wg.Wait()
	a.Close()

	var prev time.Time
	sc := bufio.NewScanner(bytes.NewReader(out.buf.Bytes()))
	count := 0
	for sc.Scan() {
		var line struct {
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		ts, err := time.Parse(time.RFC3339Nano, line.Timestamp)
		if err != nil {
			t.Fatalf("bad timestamp: %v", err)
		}
		if ts.Before(prev) {
			t.Fatalf("line %d went back in time: %s < %s", count, ts, prev)
		}
		prev = ts
		count++
	}
	if count != 400 {
		t.Fatalf("expected 400 lines, got %d", count)
	}
}
