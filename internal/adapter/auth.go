// internal/adapter/auth.go
package adapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ------------------------------------------------------------
// 인증 primitive
//
// 모든 비교는 상수 시간이다. 길이가 다른 입력도
// sha256 으로 길이를 맞춘 뒤 비교하므로 길이 정보가 새지 않는다.
// ------------------------------------------------------------

// SignHex returns hex(HMAC-SHA256(body, secret)).
func SignHex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACHex
//   - header 는 hex 문자열 (대소문자 무관, 앞뒤 공백 무시)
//   - hex 디코딩 실패 / 길이 불일치도 같은 경로로 false
func VerifyHMACHex(body []byte, secret, header string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil {
		got = nil
	}
	return TokenEqual(string(got), string(want))
}

// TokenEqual compares a presented credential with the configured one in constant time.
func TokenEqual(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1 && got != "" && want != ""
}
