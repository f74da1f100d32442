package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/model"
)

// HeaderEduzzSignature carries hex(HMAC-SHA256(body, secret)).
const HeaderEduzzSignature = "X-Eduzz-Signature"

type Eduzz struct {
	Secret string
}

func (Eduzz) Origin() model.Origin { return model.OriginEduzz }

func (e Eduzz) Configured() bool { return e.Secret != "" }

func (e Eduzz) Authenticate(r *http.Request, body []byte) error {
	sig := r.Header.Get(HeaderEduzzSignature)
	if sig == "" || !VerifyHMACHex(body, e.Secret, sig) {
		return apperr.ErrAuthFailed
	}
	return nil
}

// Normalize
//
//	event_kind  ← event
//	status      ← status
//	external_id ← transaction_id | trans_cod | id | "sha256:<hex(body)>"
//	amount      ← commission
//	currency    ← currency | BRL
//	product     ← product_name
//
// Eduzz 콜백은 id 필드가 버전마다 달라서, 아무것도 없으면 body 해시를 id 로 쓴다.
// 같은 body 재전송은 같은 id 가 되므로 dedup 이 그대로 동작한다.
func (Eduzz) Normalize(_ *http.Request, body []byte) (*model.NeutralEvent, error) {
	m, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(m["commission"])
	if err != nil {
		return nil, fmt.Errorf("eduzz: %w", err)
	}

	id := firstStr(m["transaction_id"], m["trans_cod"], m["id"])
	if id == "" {
		sum := sha256.Sum256(body)
		id = "sha256:" + hex.EncodeToString(sum[:])
	}

	return &model.NeutralEvent{
		Origin:     model.OriginEduzz,
		EventKind:  orUnknown(str(m["event"])),
		Status:     orUnknown(str(m["status"])),
		ExternalID: id,
		Product:    str(m["product_name"]),
		Financial: model.Financial{
			Amount:   amount,
			Currency: currencyOr(str(m["currency"]), "BRL"),
		},
		Raw: m,
	}, nil
}
