// Package secure wraps resolved credential material in encrypted memory so
// plaintext never sits in an ordinary Go heap allocation between the moment a
// value is resolved and the moment it is encoded into an API payload.
package secure

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Value is one resolved credential held in a sealed memguard enclave. The
// enclave encrypts the plaintext at rest in memory and mlocks the backing
// pages where the platform allows it.
type Value struct {
	enclave *memguard.Enclave
	size    int
}

// NewValue seals the given bytes. memguard wipes the input buffer, so callers
// must not reuse it afterwards.
func NewValue(data []byte) *Value {
	size := len(data)
	return &Value{enclave: memguard.NewEnclave(data), size: size}
}

// NewValueFromString seals a string value.
func NewValueFromString(s string) *Value {
	return NewValue([]byte(s))
}

// Len reports the plaintext length without opening the enclave.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	return v.size
}

// Peek opens the enclave, invokes fn with the plaintext, and wipes the
// decrypted buffer before returning. fn must not retain the slice.
func (v *Value) Peek(fn func(plaintext []byte) error) error {
	if v == nil || v.enclave == nil {
		return fmt.Errorf("secure value is empty")
	}
	buf, err := v.enclave.Open()
	if err != nil {
		return fmt.Errorf("open sealed value: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Reveal returns a copy of the plaintext. The caller owns the returned slice
// and is responsible for its lifetime; prefer Peek where possible.
func (v *Value) Reveal() ([]byte, error) {
	var out []byte
	err := v.Peek(func(plaintext []byte) error {
		out = append([]byte(nil), plaintext...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Purge wipes every enclave the process has created. Call it once on exit.
func Purge() {
	memguard.Purge()
}
