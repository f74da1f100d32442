package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"
)

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func flipHex(c byte) byte {
	if c == '0' {
		return '1'
	}
	return '0'
}

func median(d []time.Duration) time.Duration {
	s := slices.Clone(d)
	slices.Sort(s)
	return s[len(s)/2]
}
