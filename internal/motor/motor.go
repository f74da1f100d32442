// internal/motor/motor.go
package motor

import (
	"fmt"
	"regexp"
	"sync"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/model"

	"github.com/shopspring/decimal"
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Motor
// ------------------------------------------------------------
// 메모리 ledger + 상품별 누적 합계.
//
//   - Ingest 는 입력에 대해 결정적이다: ledger 에 한 줄 추가, 상품 합계 갱신.
//   - product 가 빈 이벤트는 ledger 에는 남기지만 ranking 에서는 제외한다.
//   - 상태 변경은 Receiver 만 한다 (다른 패키지는 조회만).
type Motor struct {
	mu     sync.RWMutex
	ledger []model.LedgerEntry
	totals map[string]decimal.Decimal
}

func New() *Motor {
	return &Motor{totals: make(map[string]decimal.Decimal)}
}

// Validate checks the event invariants without touching state.
// 위반은 ErrPermanent 로 감싼다: 같은 이벤트를 다시 보내도 결과가 같다.
func (m *Motor) Validate(ev *model.NeutralEvent) error {
	switch {
	case ev == nil:
		return fmt.Errorf("%w: nil event", apperr.ErrPermanent)
	case !ev.Origin.Valid():
		return fmt.Errorf("%w: unknown origin %q", apperr.ErrPermanent, ev.Origin)
	case ev.ExternalID == "":
		return fmt.Errorf("%w: empty external_id", apperr.ErrPermanent)
	case ev.Financial.Amount.IsNegative():
		return fmt.Errorf("%w: negative amount", apperr.ErrPermanent)
	case outOfRange(ev.Financial.Amount):
		return fmt.Errorf("%w: amount out of range", apperr.ErrPermanent)
	case !currencyRe.MatchString(ev.Financial.Currency):
		return fmt.Errorf("%w: bad currency %q", apperr.ErrPermanent, ev.Financial.Currency)
	case ev.IngestedAt.IsZero():
		return fmt.Errorf("%w: missing ingested_at", apperr.ErrPermanent)
	}
	return nil
}

// outOfRange 는 NUMERIC(20,2) 에 담을 수 없는 형태 (정수부 18자리 초과, 소수 8자리 초과).
func outOfRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return false
	}
	return d.Exponent() < -8 || d.NumDigits()+int(d.Exponent()) > 18
}

// Ingest validates and applies ev.
func (m *Motor) Ingest(ev *model.NeutralEvent) error {
	if err := m.Validate(ev); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger = append(m.ledger, model.LedgerEntry{
		Product: ev.Product,
		Amount:  ev.Financial.Amount,
		Origin:  ev.Origin,
		Ts:      ev.IngestedAt,
	})
	if ev.Product != "" {
		m.totals[ev.Product] = m.totals[ev.Product].Add(ev.Financial.Amount)
	}
	return nil
}

// BestOffer returns the product with the highest running sum.
// 동률이면 사전순으로 가장 작은 product. 비어 있으면 ok=false.
func (m *Motor) BestOffer() (product string, total decimal.Decimal, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for p, sum := range m.totals {
		if !ok || sum.GreaterThan(total) || (sum.Equal(total) && p < product) {
			product, total, ok = p, sum, true
		}
	}
	return product, total, ok
}

// Total returns the running sum for product.
func (m *Motor) Total(product string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals[product]
}

// Ledger returns a copy of the ledger in ingest order.
func (m *Motor) Ledger() []model.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.LedgerEntry(nil), m.ledger...)
}

// Len returns the number of ledger entries.
func (m *Motor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ledger)
}
