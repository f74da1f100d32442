package adapter

import (
	"fmt"
	"net/http"
	"strings"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/httpx"
	"robo-ingest/internal/model"
)

// HeaderMonetizzeToken is checked before Authorization: Bearer.
const HeaderMonetizzeToken = "X-Monetizze-Token"

type Monetizze struct {
	Token string
}

func (Monetizze) Origin() model.Origin { return model.OriginMonetizze }

func (m Monetizze) Configured() bool { return m.Token != "" }

func (m Monetizze) Authenticate(r *http.Request, _ []byte) error {
	got := r.Header.Get(HeaderMonetizzeToken)
	if got == "" {
		got = httpx.BearerToken(r.Header)
	}
	if !TokenEqual(strings.TrimSpace(got), m.Token) {
		return apperr.ErrAuthFailed
	}
	return nil
}

// Normalize
//
//	event_kind  ← event
//	status      ← data.status
//	external_id ← data.sale_id
//	amount      ← data.sale_value
//	currency    ← data.currency | BRL
//	product     ← data.product.name | data.product_name
func (Monetizze) Normalize(_ *http.Request, body []byte) (*model.NeutralEvent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(lookup(m, "data", "sale_value"))
	if err != nil {
		return nil, fmt.Errorf("monetizze: %w", err)
	}

	return &model.NeutralEvent{
		Origin:     model.OriginMonetizze,
		EventKind:  orUnknown(str(m["event"])),
		Status:     orUnknown(str(lookup(m, "data", "status"))),
		ExternalID: str(lookup(m, "data", "sale_id")),
		Product: firstStr(
			lookup(m, "data", "product", "name"),
			lookup(m, "data", "product_name"),
		),
		Financial: model.Financial{
			Amount:   amount,
			Currency: currencyOr(str(lookup(m, "data", "currency")), "BRL"),
		},
		Raw: m,
	}, nil
}
