package receiver

import (
	"context"
	"crypto/subtle"
	"net/http"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/httpx"
	"robo-ingest/internal/model"

	json "github.com/goccy/go-json"
)

const maxDeliveryBytes = 4 << 20

// Handler
// ------------------------------------------------------------
// POST /internal/receiver
//
//   - 200: admitted 또는 duplicate (body = ReceiveResult). dispatcher 는 terminal 로 본다.
//   - 422: Motor invariant 위반 (permanent). dispatcher 는 바로 dead-letter.
//   - 500: persistence / in-flight 등 transient. dispatcher 가 backoff 후 재시도.
//   - 401: Bearer 가 token 과 다를 때. token 이 비어 있으면 모든 요청을 거절한다.
//
// 이 endpoint 는 플랫폼이 아니라 CEN 만 호출한다.
func (r *Receiver) Handler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		got := httpx.BearerToken(req.Header)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var d model.InboundDelivery
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxDeliveryBytes))
		dec.UseNumber()
		if err := dec.Decode(&d); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "malformed delivery")
			return
		}

		res, err := r.Receive(req.Context(), d)
		switch {
		case err == nil:
			httpx.WriteJSON(w, http.StatusOK, res)
		case apperr.IsPermanent(err):
			httpx.WriteError(w, http.StatusUnprocessableEntity, "permanent failure")
		default:
			httpx.WriteError(w, http.StatusInternalServerError, "transient failure")
		}
	}
}

// Local delivers in process, without HTTP. CEN uses it when no Receiver URL is set.
type Local struct {
	R *Receiver
}

func (l Local) Deliver(ctx context.Context, d model.InboundDelivery) (model.ReceiveResult, error) {
	return l.R.Receive(ctx, d)
}
