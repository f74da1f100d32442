package adapter

import (
	"bytes"
	"fmt"
	"strings"

	"robo-ingest/internal/apperr"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// decodeObject parses body as a JSON object. 숫자는 json.Number 로 남겨
// 금액을 float 를 거치지 않고 decimal 로 옮긴다.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrMalformedPayload, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", apperr.ErrMalformedPayload)
	}
	return m, nil
}

// lookup walks nested objects. 중간에 객체가 아니면 nil.
func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, k := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

// str renders scalars as text. 객체 / 배열 / null 은 "".
func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return ""
}

// firstStr returns the first non-empty candidate.
func firstStr(vals ...any) string {
	for _, v := range vals {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

// parseAmount
//   - json.Number / 숫자 문자열 → 그대로 decimal (반올림 없음)
//   - {"value": ...} 객체 → value 를 다시 해석
//   - 없음 → 0
//   - 그 외 → MalformedPayload
func parseAmount(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return parseDecimal(t.String())
	case string:
		if strings.TrimSpace(t) == "" {
			return decimal.Zero, nil
		}
		return parseDecimal(t)
	case map[string]any:
		return parseAmount(t["value"])
	}
	return decimal.Zero, fmt.Errorf("%w: amount is not a number", apperr.ErrMalformedPayload)
}

// 금액 형태 상한 (저장 컬럼 NUMERIC(20,2) 기준).
// 1e50000000 같은 지수 표기도 자릿수로 걸러진다.
const (
	maxAmountText      = 40
	maxAmountScale     = 8
	maxAmountIntDigits = 18
)

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxAmountText {
		return decimal.Zero, fmt.Errorf("%w: amount too long", apperr.ErrMalformedPayload)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", apperr.ErrMalformedPayload, s)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	if d.Exponent() < -maxAmountScale || d.NumDigits()+int(d.Exponent()) > maxAmountIntDigits {
		return decimal.Zero, fmt.Errorf("%w: amount %q out of range", apperr.ErrMalformedPayload, s)
	}
	return d, nil
}

// currencyOr upper-cases code, falling back to def when empty.
func currencyOr(code, def string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return def
	}
	return code
}

// orUnknown fills event_kind / status when the platform omitted them.
func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// Unknown is the documented default for a missing event_kind or status.
const Unknown = "unknown"
