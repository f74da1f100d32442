package httpx

import (
	"net/http"
	"strings"
)

// BearerToken returns the credential of "Authorization: Bearer <t>".
// scheme 비교는 대소문자를 구분하지 않는다 (RFC 7235).
func BearerToken(h http.Header) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
