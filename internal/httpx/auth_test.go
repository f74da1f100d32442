package httpx

import (
	"net/http"
	"testing"
)

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer T":     "T",
		"bearer T":     "T",
		"BEARER  T ":   "T",
		"Basic dXNlcg": "",
		"Bearer":       "",
		"":             "",
	}
	for in, want := range cases {
		h := http.Header{}
		if in != "" {
			h.Set("Authorization", in)
		}
		if got := BearerToken(h); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
