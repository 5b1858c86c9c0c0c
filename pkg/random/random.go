// Package random generates the opaque secrets used by the credential
// exchange flows. All values come from crypto/rand; none of them are
// meant to be parseable.
package random

import (
	"crypto/rand"
	"encoding/base64"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// OpaqueToken returns a 256-bit random value encoded as unpadded
// base64url, suitable for pre-authorized codes and bearer tokens.
func OpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Alphanumeric returns n random characters from [A-Za-z0-9], used for
// exchange state and nonce values that travel inside URLs.
func Alphanumeric(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out)
}
