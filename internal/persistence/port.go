// internal/persistence/port.go
package persistence

import (
	"context"

	"robo-ingest/internal/model"

	"github.com/shopspring/decimal"
)

// Port
// ------------------------------------------------------------
// Receiver 와 감사 로그가 의존하는 영속화 경계.
//
//   - Log:             append-only. 호출자는 결과를 기다리지 않아도 된다.
//   - RecordEvent:     (origin, external_id) 기준 upsert.
//   - RecordFinancial: {external_id, amount, origin, product, ts} insert.
//
// 모든 메서드는 ctx deadline 을 지켜야 한다 (Receiver 는 5s 를 건다).
type Port interface {
	Log(ctx context.Context, rec model.LogRecord) error
	RecordEvent(ctx context.Context, ev *model.NeutralEvent) error
	RecordFinancial(ctx context.Context, rec model.FinancialRecord) error
}

// Closer is implemented by backends that buffer writes.
type Closer interface {
	Close(ctx context.Context) error
}

// NewFinancialRecord derives the financial row written for an admitted event.
func NewFinancialRecord(ev *model.NeutralEvent) model.FinancialRecord {
	return model.FinancialRecord{
		ExternalID: ev.ExternalID,
		Origin:     ev.Origin,
		Product:    ev.Product,
		Amount:     ev.Financial.Amount,
		Currency:   ev.Financial.Currency,
		Ts:         ev.IngestedAt,
	}
}

// FormatAmount renders a money amount for storage: two places, banker's rounding.
// 메모리 / Motor 쪽 값은 반올림하지 않는다. 저장 표현에서만 자른다.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixedBank(2)
}
