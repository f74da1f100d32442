package persistence

import (
	"context"
	"errors"
	"testing"

	"robo-ingest/internal/model"

	"github.com/shopspring/decimal"
)

func TestMemoryUpsertAndInsert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ev := &model.NeutralEvent{Origin: model.OriginHotmart, ExternalID: "A", Status: "approved"}

	for i := 0; i < 2; i++ {
		if err := m.RecordEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
		if err := m.RecordFinancial(ctx, NewFinancialRecord(ev)); err != nil {
			t.Fatal(err)
		}
	}
	if m.EventCount() != 1 {
		t.Fatalf("events = %d, want 1 (upsert)", m.EventCount())
	}
	if len(m.Financial()) != 2 {
		t.Fatalf("financial = %d, want 2 (insert)", len(m.Financial()))
	}
}

func TestMemoryFailWith(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk")
	m.FailWith(boom)
	if err := m.RecordEvent(context.Background(), &model.NeutralEvent{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	m.FailWith(nil)
	if err := m.RecordEvent(context.Background(), &model.NeutralEvent{}); err != nil {
		t.Fatal(err)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"10.125": "10.12",
		"10.135": "10.14",
		"0":      "0.00",
		"97":     "97.00",
		"1.005":  "1.00",
	}
	for in, want := range cases {
		if got := FormatAmount(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatAmount(%s) = %s, want %s", in, got, want)
		}
	}
}
