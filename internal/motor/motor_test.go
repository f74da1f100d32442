package motor

import (
	"errors"
	"testing"
	"time"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/model"

	"github.com/shopspring/decimal"
)

func event(id, product, amount string) *model.NeutralEvent {
	return &model.NeutralEvent{
		Origin:     model.OriginHotmart,
		ExternalID: id,
		Product:    product,
		Financial:  model.Financial{Amount: decimal.RequireFromString(amount), Currency: "BRL"},
		IngestedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// S7
func TestBestOffer(t *testing.T) {
	m := New()
	for _, ev := range []*model.NeutralEvent{
		event("1", "A", "10"),
		event("2", "B", "7"),
		event("3", "A", "5"),
	} {
		if err := m.Ingest(ev); err != nil {
			t.Fatal(err)
		}
	}
	p, total, ok := m.BestOffer()
	if !ok || p != "A" || !total.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("BestOffer = %q %s %v, want A 15", p, total, ok)
	}
	if m.Len() != 3 {
		t.Fatalf("ledger len = %d", m.Len())
	}
}

func TestBestOfferTieBreak(t *testing.T) {
	m := New()
	_ = m.Ingest(event("1", "zeta", "5.50"))
	_ = m.Ingest(event("2", "alpha", "5.5"))
	_ = m.Ingest(event("3", "mid", "1"))

	p, _, ok := m.BestOffer()
	if !ok || p != "alpha" {
		t.Fatalf("BestOffer = %q, want alpha (lexicographic tie-break)", p)
	}
}

func TestBestOfferEmpty(t *testing.T) {
	m := New()
	if _, _, ok := m.BestOffer(); ok {
		t.Fatal("empty motor has no best offer")
	}
	_ = m.Ingest(event("1", "", "100"))
	if _, _, ok := m.BestOffer(); ok {
		t.Fatal("events without product are not ranked")
	}
	if m.Len() != 1 {
		t.Fatal("productless event still belongs in the ledger")
	}
}

func TestExactDecimalSum(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		_ = m.Ingest(event("x", "P", "0.1"))
	}
	if got := m.Total("P"); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("total = %s, want exactly 1", got)
	}
}

func TestValidateRejectsWithoutMutating(t *testing.T) {
	cases := map[string]func(*model.NeutralEvent){
		"origin":   func(e *model.NeutralEvent) { e.Origin = "PAYPAL" },
		"id":       func(e *model.NeutralEvent) { e.ExternalID = "" },
		"amount":   func(e *model.NeutralEvent) { e.Financial.Amount = decimal.NewFromInt(-1) },
		"huge":     func(e *model.NeutralEvent) { e.Financial.Amount = decimal.New(1, 50000000) },
		"currency": func(e *model.NeutralEvent) { e.Financial.Currency = "real" },
		"ts":       func(e *model.NeutralEvent) { e.IngestedAt = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := New()
			ev := event("1", "A", "1")
			mutate(ev)
			err := m.Ingest(ev)
			if !errors.Is(err, apperr.ErrPermanent) {
				t.Fatalf("err = %v, want ErrPermanent", err)
			}
			if m.Len() != 0 {
				t.Fatal("rejected event mutated the ledger")
			}
		})
	}
}
