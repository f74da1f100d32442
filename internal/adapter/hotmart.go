package adapter

import (
	"fmt"
	"net/http"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/model"
)

// HeaderHotmartHMAC carries hex(HMAC-SHA256(body, secret)).
const HeaderHotmartHMAC = "X-Hotmart-Hmac-SHA256"

type Hotmart struct {
	Secret string
}

func (Hotmart) Origin() model.Origin { return model.OriginHotmart }

func (h Hotmart) Configured() bool { return h.Secret != "" }

func (h Hotmart) Authenticate(r *http.Request, body []byte) error {
	sig := r.Header.Get(HeaderHotmartHMAC)
	if sig == "" || !VerifyHMACHex(body, h.Secret, sig) {
		return apperr.ErrAuthFailed
	}
	return nil
}

// Normalize
//
//	event_kind  ← event
//	status      ← data.status | data.purchase.status
//	external_id ← data.transaction.id | data.purchase.transaction
//	amount      ← data.purchase.price (숫자 또는 {value, currency_value})
//	currency    ← data.purchase.currency | data.purchase.price.currency_value | BRL
//	product     ← data.product.id | data.product.name
func (Hotmart) Normalize(_ *http.Request, body []byte) (*model.NeutralEvent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	price := lookup(m, "data", "purchase", "price")
	amount, err := parseAmount(price)
	if err != nil {
		return nil, fmt.Errorf("hotmart: %w", err)
	}

	return &model.NeutralEvent{
		Origin:    model.OriginHotmart,
		EventKind: orUnknown(str(m["event"])),
		Status: orUnknown(firstStr(
			lookup(m, "data", "status"),
			lookup(m, "data", "purchase", "status"),
		)),
		ExternalID: firstStr(
			lookup(m, "data", "transaction", "id"),
			lookup(m, "data", "purchase", "transaction"),
		),
		Product: firstStr(
			lookup(m, "data", "product", "id"),
			lookup(m, "data", "product", "name"),
		),
		Financial: model.Financial{
			Amount: amount,
			Currency: currencyOr(firstStr(
				lookup(m, "data", "purchase", "currency"),
				lookup(m, "data", "purchase", "price", "currency_value"),
			), "BRL"),
		},
		Raw: m,
	}, nil
}
