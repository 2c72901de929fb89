package utils

import (
	"crypto/rand"
	"math/big"
)

// NewOTP returns a numeric one-time code of the given length (6 when n < 4).
// Leading zeros are kept.
func NewOTP(n int) (string, error) {
	if n < 4 {
		n = 6
	}
	out := make([]byte, n)
	ten := big.NewInt(10)
	for i := range out {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}
