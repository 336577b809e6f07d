package resolve

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/example/secretctl/internal/secure"
)

// generatedEntropyBytes yields 43 characters of URL-safe base64, comfortably
// above any catalog minLength seen in practice.
const generatedEntropyBytes = 32

// generateValue produces a fresh random credential for a generatable key.
func generateValue() (*secure.Value, error) {
	buf := make([]byte, generatedEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	encoded := []byte(base64.RawURLEncoding.EncodeToString(buf))
	for i := range buf {
		buf[i] = 0
	}
	return secure.NewValue(encoded), nil
}
