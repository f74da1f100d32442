// internal/adapter/platform.go
package adapter

import (
	"net/http"

	"robo-ingest/internal/model"
)

// Platform
// ------------------------------------------------------------
// 제휴 플랫폼 1개에 대한 인증 + 정규화 규칙.
//
//   - Configured: secret/token 이 비어 있으면 false → endpoint 503
//   - Authenticate: raw body 기준 (파싱 전). 실패는 ErrAuthFailed
//   - Normalize: NeutralEvent 를 만든다. IngestedAt 은 Handler 가 찍는다.
type Platform interface {
	Origin() model.Origin
	Configured() bool
	Authenticate(r *http.Request, body []byte) error
	Normalize(r *http.Request, body []byte) (*model.NeutralEvent, error)
}
