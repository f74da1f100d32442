// internal/model/event.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Origin
// ------------------------------------------------------------
// 콜백을 보낸 제휴 플랫폼 식별자. 닫힌 enum 이며
// Valid() 가 false 인 값은 CEN 에서 422 로 거절된다.
type Origin string

const (
	OriginHotmart   Origin = "HOTMART"
	OriginEduzz     Origin = "EDUZZ"
	OriginMonetizze Origin = "MONETIZZE"
	OriginClickBank Origin = "CLICKBANK"
)

// Origins lists every accepted platform, in routing order.
var Origins = []Origin{OriginHotmart, OriginEduzz, OriginMonetizze, OriginClickBank}

func (o Origin) Valid() bool {
	switch o {
	case OriginHotmart, OriginEduzz, OriginMonetizze, OriginClickBank:
		return true
	}
	return false
}

// Financial 은 이벤트의 금액 정보. Amount 는 원본 숫자 텍스트를 그대로
// decimal 로 파싱한 값이며 반올림하지 않는다.
type Financial struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NeutralEvent
// ------------------------------------------------------------
// 모든 어댑터가 만들어내는 정규화된 이벤트.
// Adapter → CEN → Receiver → Motor 까지 이 형태 그대로 전달된다.
//
// Raw 는 감사(audit) 목적으로 원본 payload 를 보존할 뿐,
// 파이프라인의 어떤 단계도 Raw 를 해석하지 않는다.
type NeutralEvent struct {
	Origin     Origin         `json:"origin"`
	EventKind  string         `json:"event_kind"`
	Status     string         `json:"status"`
	ExternalID string         `json:"external_id"`
	Product    string         `json:"product,omitempty"`
	Financial  Financial      `json:"financial"`
	IngestedAt time.Time      `json:"ingested_at"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// Key returns the idempotency key of the event.
func (e *NeutralEvent) Key() DedupKey {
	return DedupKey{Origin: e.Origin, ExternalID: e.ExternalID}
}

// DedupKey is the (origin, external_id) tuple the Receiver deduplicates on.
type DedupKey struct {
	Origin     Origin
	ExternalID string
}

func (k DedupKey) String() string {
	return string(k.Origin) + ":" + k.ExternalID
}

// InboundDelivery
// ------------------------------------------------------------
// CEN dispatcher 가 Receiver 로 보내는 단위.
// DeliveryID 는 시도마다 새로 발급되므로 중복 판단에 쓰지 않는다.
type InboundDelivery struct {
	DeliveryID string       `json:"delivery_id"`
	Event      NeutralEvent `json:"event"`
	Attempt    int          `json:"attempt"`
}

// AdmitResult is returned by CEN once an event is owned by the pipeline.
type AdmitResult struct {
	DeliveryID string    `json:"delivery_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ReceiveResult is the Receiver's terminal answer for a delivery.
type ReceiveResult struct {
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
}

// ReasonDuplicate marks a delivery whose key was already admitted.
const ReasonDuplicate = "duplicate"

// LedgerEntry is one line of the Motor's in-memory ledger.
type LedgerEntry struct {
	Product string          `json:"product"`
	Amount  decimal.Decimal `json:"amount"`
	Origin  Origin          `json:"origin"`
	Ts      time.Time       `json:"ts"`
}

// FinancialRecord is the row written through RecordFinancial.
type FinancialRecord struct {
	ExternalID string          `json:"external_id"`
	Origin     Origin          `json:"origin"`
	Product    string          `json:"product"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Ts         time.Time       `json:"ts"`
}

// DeadLetter
// ------------------------------------------------------------
// 재시도 예산(24h)을 소진했거나 영구 실패로 판정된 이벤트.
// 이벤트당 정확히 하나만 생성된다.
type DeadLetter struct {
	Event          NeutralEvent `json:"event"`
	Attempts       int          `json:"attempts"`
	FirstAttemptAt time.Time    `json:"first_attempt_at"`
	DeadLetteredAt time.Time    `json:"dead_lettered_at"`
	Reason         string       `json:"reason"`
	LastError      string       `json:"last_error,omitempty"`
}

const (
	DeadLetterBudgetExhausted = "retry_budget_exhausted"
	DeadLetterPermanent       = "permanent_failure"
	DeadLetterShutdown        = "shutdown"
)
