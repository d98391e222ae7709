// Package crypto provides the Ed25519 key and signature types used to
// authenticate decryption-oracle traffic. Principals (creators, respondents)
// are identified by hex-encoded public keys; oracle callbacks are signed so
// the ledger can tell a genuine reveal from a replay by an impostor.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// PublicKey identifies a signer. Hex-encoded public keys double as map keys
// and as principal identifiers throughout the ledger.
type PublicKey []byte

// NewPublicKeyFromBytes copies data into a new PublicKey.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	pk := make([]byte, len(data))
	copy(pk, data)
	return PublicKey(pk)
}

// NewPublicKeyFromString parses a hex-encoded public key.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return NewPublicKeyFromBytes(raw), nil
}

// Bytes returns the raw key material.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// String returns the hex encoding of the key.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk)
}

// PrivateKey holds Ed25519 signing key material. Keep it out of logs.
type PrivateKey []byte

// NewPrivateKeyFromBytes copies data into a new PrivateKey.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	sk := make([]byte, len(data))
	copy(sk, data)
	return PrivateKey(sk)
}

// Bytes returns the raw key material.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey derives the corresponding public key.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair creates a fresh Ed25519 key pair.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(pub), PrivateKey(priv), nil
}

// Signature is an Ed25519 signature over a serialized message.
type Signature []byte

// NewSignature copies data into a new Signature.
func NewSignature(data []byte) Signature {
	sig := make([]byte, len(data))
	copy(sig, data)
	return Signature(sig)
}

// Bytes returns the raw signature.
func (s Signature) Bytes() []byte {
	return s
}

// Verify reports whether the signature is valid for msg under pub.
func (s Signature) Verify(pub PublicKey, msg []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, s)
}

// Sign produces a signature over msg with the given private key.
func Sign(priv PrivateKey, msg []byte) (Signature, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return Signature(ed25519.Sign(ed25519.PrivateKey(priv), msg)), nil
}
