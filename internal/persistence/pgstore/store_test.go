package pgstore

import (
	"strings"
	"testing"
	"time"

	"robo-ingest/internal/model"

	"github.com/shopspring/decimal"
)

func TestToEventModel(t *testing.T) {
	ev := &model.NeutralEvent{
		Origin:     model.OriginMonetizze,
		EventKind:  "venda",
		Status:     "2",
		ExternalID: "M-9",
		Product:    "Curso",
		Financial:  model.Financial{Amount: decimal.RequireFromString("99.995"), Currency: "BRL"},
		IngestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600)),
		Raw:        map[string]any{"k": "v"},
	}
	row, err := toEventModel(ev)
	if err != nil {
		t.Fatal(err)
	}
	if row.Origin != "MONETIZZE" || row.ExternalID != "M-9" {
		t.Fatalf("key = %s/%s", row.Origin, row.ExternalID)
	}
	if row.Amount != "100.00" {
		t.Fatalf("amount = %s, want 100.00", row.Amount)
	}
	if row.IngestedAt.Location() != time.UTC || row.IngestedAt.Hour() != 15 {
		t.Fatalf("ingested_at = %s, want 15:00 UTC", row.IngestedAt)
	}
	if string(row.Raw) != `{"k":"v"}` {
		t.Fatalf("raw = %s", row.Raw)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	raw, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"neutral_events", "financial_records", "audit_logs"} {
		if !strings.Contains(string(raw), table) {
			t.Fatalf("migration does not create %s", table)
		}
	}
}
