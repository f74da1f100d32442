package adapter

import (
	"fmt"
	"net/http"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/model"
)

// QueryClickBankSecret is the query parameter carrying the shared secret.
const QueryClickBankSecret = "secretKey"

// ClickBank postbacks are GET requests; everything lives in the query string.
type ClickBank struct {
	Secret string
}

func (ClickBank) Origin() model.Origin { return model.OriginClickBank }

func (c ClickBank) Configured() bool { return c.Secret != "" }

func (c ClickBank) Authenticate(r *http.Request, _ []byte) error {
	if !TokenEqual(r.URL.Query().Get(QueryClickBankSecret), c.Secret) {
		return apperr.ErrAuthFailed
	}
	return nil
}

// Normalize
//
//	event_kind  ← transactionType
//	external_id ← receipt
//	amount      ← amount
//	currency    ← currency | USD
//	product     ← item
//	status      ← status | transactionType
//
// raw 에는 secretKey 를 남기지 않는다.
func (ClickBank) Normalize(r *http.Request, _ []byte) (*model.NeutralEvent, error) {
	q := r.URL.Query()

	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		return nil, fmt.Errorf("clickbank: %w", err)
	}

	raw := make(map[string]any, len(q))
	for k, v := range q {
		if k == QueryClickBankSecret || len(v) == 0 {
			continue
		}
		raw[k] = v[0]
	}

	kind := q.Get("transactionType")
	status := q.Get("status")
	if status == "" {
		status = kind
	}

	return &model.NeutralEvent{
		Origin:     model.OriginClickBank,
		EventKind:  orUnknown(kind),
		Status:     orUnknown(status),
		ExternalID: q.Get("receipt"),
		Product:    q.Get("item"),
		Financial: model.Financial{
			Amount:   amount,
			Currency: currencyOr(q.Get("currency"), "USD"),
		},
		Raw: raw,
	}, nil
}
