// Package crypto provides the random tokens used by the OAuth flow: PKCE code
// verifiers and anti-replay state values. Bytes always come from the operating
// system's cryptographic random source; there is no fallback generator.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Alphabet is the set of characters produced by RandomString. It is the
// unreserved character set of RFC 3986, which is also the set RFC 7636 allows
// in a PKCE code verifier.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._~-"

// ErrEntropy is returned when the random source cannot supply bytes.
var ErrEntropy = errors.New("crypto: entropy source unavailable")

// source is swapped in tests to simulate an unavailable entropy source.
var source io.Reader = rand.Reader

// RandomString returns exactly length characters drawn from Alphabet.
//
// Each random byte is reduced modulo len(Alphabet). A failed read is returned
// to the caller wrapped in ErrEntropy.
func RandomString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("crypto: invalid token length %d", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(source, buf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}
