package oracle

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// The dev scheme stands in for a real FHE coprocessor in tests, demos and
// the oracle simulator. Handles are decodable by anyone holding them, so it
// provides no confidentiality whatsoever. It exists so the full
// import/grant/add/decrypt protocol can run end to end across processes
// without shared state.
//
// External ciphertext: 8-byte big-endian two's-complement value.
// Input proof: SHA-256 over the external bytes.
// Handle: "dev1:" + base64url(8-byte value || 8-byte nonce).

const devHandlePrefix = "dev1:"

// EncodeExternal produces a dev-scheme external ciphertext for value.
func EncodeExternal(value int64) ExternalCiphertext {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	return ExternalCiphertext(buf)
}

// ProveExternal produces the input proof for a dev-scheme external ciphertext.
func ProveExternal(external ExternalCiphertext) InputProof {
	sum := sha256.Sum256(external)
	return InputProof(sum[:])
}

// DecodeHandle extracts the plaintext value from a dev-scheme handle.
func DecodeHandle(h Handle) (int64, error) {
	encoded, ok := strings.CutPrefix(string(h), devHandlePrefix)
	if !ok {
		return 0, fmt.Errorf("not a dev handle: %q", h)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return 0, fmt.Errorf("malformed dev handle: %w", err)
	}
	if len(raw) != 16 {
		return 0, errors.New("malformed dev handle: bad length")
	}
	return int64(binary.BigEndian.Uint64(raw[:8])), nil
}

func encodeHandle(value int64) (Handle, error) {
	raw := make([]byte, 16)
	binary.BigEndian.PutUint64(raw[:8], uint64(value))
	if _, err := rand.Read(raw[8:]); err != nil {
		return "", err
	}
	return Handle(devHandlePrefix + base64.RawURLEncoding.EncodeToString(raw)), nil
}

// DevCoprocessor implements Coprocessor with the dev scheme. Grants are
// recorded in memory so tests can assert on them; Add and Import never
// consult any out-of-process state.
type DevCoprocessor struct {
	grants map[Handle][]string
}

// NewDevCoprocessor creates a dev coprocessor with an empty grant table.
func NewDevCoprocessor() *DevCoprocessor {
	return &DevCoprocessor{grants: make(map[Handle][]string)}
}

// ImportCiphertext verifies the proof and mints a fresh handle.
func (c *DevCoprocessor) ImportCiphertext(ctx context.Context, external ExternalCiphertext, proof InputProof) (Handle, error) {
	if len(external) != 8 {
		return "", errors.New("import: external ciphertext must be 8 bytes")
	}
	expected := ProveExternal(external)
	if subtle.ConstantTimeCompare(expected, proof) != 1 {
		return "", errors.New("import: input proof invalid")
	}
	return encodeHandle(int64(binary.BigEndian.Uint64(external)))
}

// Grant records a decryption permission for principal on handle.
func (c *DevCoprocessor) Grant(ctx context.Context, handle Handle, principal string) error {
	if _, err := DecodeHandle(handle); err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	c.grants[handle] = append(c.grants[handle], principal)
	return nil
}

// Grants returns the principals granted on handle, in grant order.
func (c *DevCoprocessor) Grants(handle Handle) []string {
	return c.grants[handle]
}

// Add returns a handle to the sum of the two operand plaintexts.
func (c *DevCoprocessor) Add(ctx context.Context, a, b Handle) (Handle, error) {
	va, err := DecodeHandle(a)
	if err != nil {
		return "", fmt.Errorf("add: %w", err)
	}
	vb, err := DecodeHandle(b)
	if err != nil {
		return "", fmt.Errorf("add: %w", err)
	}
	return encodeHandle(va + vb)
}
