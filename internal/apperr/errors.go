// internal/apperr/errors.go
package apperr

import (
	"errors"
	"net/http"
)

// 파이프라인 전체에서 쓰는 sentinel error.
// 각 계층은 fmt.Errorf("...: %w", ErrXxx) 로 감싸서 반환하고,
// HTTP 계층은 HTTPStatus / PublicMessage 로만 변환한다.
var (
	// ErrConfigMissing: 플랫폼 secret/token 미설정 → endpoint 비활성 (503)
	ErrConfigMissing = errors.New("endpoint disabled")

	// ErrAuthFailed: HMAC / token / secret 불일치 또는 누락 (401)
	ErrAuthFailed = errors.New("authentication failed")

	// ErrMalformedPayload: body 파싱 실패, 음수 금액 (400)
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidEvent: NeutralEvent 형태 검증 실패 (422)
	ErrInvalidEvent = errors.New("invalid event")

	// ErrBackpressure: dispatch backlog 가 가득 참 (503, 호출자 재시도)
	ErrBackpressure = errors.New("dispatch backlog full")

	// ErrTransient: Receiver / persistence 일시 장애. CEN 이 backoff 후 재시도한다.
	ErrTransient = errors.New("transient downstream failure")

	// ErrPermanent: Motor invariant 위반. 재시도 없이 dead-letter 로 보낸다.
	ErrPermanent = errors.New("permanent downstream failure")
)

// HTTPStatus
//
// 호출자에게 보이는 상태 코드는 {200, 400, 401, 422, 503} 로만 수렴한다.
// 분류되지 않은 내부 오류는 플랫폼이 재시도하도록 503 으로 접는다.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// PublicMessage 는 응답 body 에 실을 고정 문구를 돌려준다.
// secret 이나 payload 조각이 새어나가지 않도록 err.Error() 는 절대 쓰지 않는다.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfigMissing):
		return "endpoint disabled"
	case errors.Is(err, ErrAuthFailed):
		return "unauthorized"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed payload"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid event"
	case errors.Is(err, ErrBackpressure):
		return "busy, retry later"
	default:
		return "temporarily unavailable"
	}
}

// IsPermanent reports whether the dispatcher must stop retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsTransient reports whether a downstream failure is worth retrying.
// 분류되지 않은 오류(네트워크, 단건 timeout 등)도 모두 transient 로 본다.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
