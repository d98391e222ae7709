package oracle

import (
	"context"
	"fmt"

	"github.com/Veblen3358/secure-reveal-lab/crypto"
)

// Handle is an opaque reference to an encrypted value held by the
// coprocessor. It carries no operable information on its own.
type Handle string

// ExternalCiphertext is the respondent-supplied encrypted answer before it
// has been imported and proof-checked by the coprocessor.
type ExternalCiphertext []byte

// InputProof attests that an external ciphertext encrypts a well-formed
// answer. Generated client-side, verified by the coprocessor on import.
type InputProof []byte

// CorrelationID links a decryption request to its eventual callback. It is
// issued by the oracle and must be globally unique.
type CorrelationID string

// Coprocessor performs all ciphertext-side operations on behalf of the
// ledger. Implementations run outside the ledger's trust domain.
type Coprocessor interface {
	// ImportCiphertext verifies the input proof and converts the external
	// representation into an internal handle. Fails if the proof is invalid.
	ImportCiphertext(ctx context.Context, external ExternalCiphertext, proof InputProof) (Handle, error)

	// Grant authorizes the principal to later request decryption of handle.
	Grant(ctx context.Context, handle Handle, principal string) error

	// Add returns a handle to the homomorphic sum of a and b.
	Add(ctx context.Context, a, b Handle) (Handle, error)
}

// DecryptionOracle accepts batches of handles for asynchronous decryption.
type DecryptionOracle interface {
	// RequestDecryption submits handles for decryption and returns a fresh
	// correlation id. The plaintexts arrive later via the ledger's callback
	// endpoint, possibly never.
	RequestDecryption(ctx context.Context, handles []Handle) (CorrelationID, error)
}

// DecryptionResult is the payload an oracle delivers back to the ledger.
type DecryptionResult struct {
	CorrelationID CorrelationID `json:"correlation_id"`
	Plaintexts    []int64       `json:"plaintexts"`
}

// AuthenticityProof accompanies a DecryptionResult and proves it was
// produced by a specific oracle key.
type AuthenticityProof struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
}

// SignResult produces an authenticity proof over a decryption result.
// The signature covers the serialized result concatenated with the signer's
// public key to prevent key substitution.
func SignResult(priv crypto.PrivateKey, res *DecryptionResult) (AuthenticityProof, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return AuthenticityProof{}, err
	}

	serialized, err := SerializeMessage(res)
	if err != nil {
		return AuthenticityProof{}, err
	}

	sig, err := crypto.Sign(priv, append(serialized, pub...))
	if err != nil {
		return AuthenticityProof{}, err
	}

	return AuthenticityProof{PublicKey: pub, Signature: sig}, nil
}

// Verify checks the proof's signature over res. It does not decide whether
// the signing key belongs to a trusted oracle; that is the verifier's job.
func (p AuthenticityProof) Verify(res *DecryptionResult) error {
	serialized, err := SerializeMessage(res)
	if err != nil {
		return err
	}
	if !p.Signature.Verify(p.PublicKey, append(serialized, p.PublicKey...)) {
		return fmt.Errorf("signature not valid for result %s", res.CorrelationID)
	}
	return nil
}

// CallbackVerifier decides whether a decryption result is authentic, i.e.
// signed by an oracle the deployment trusts. The ledger calls it on every
// callback before any state change.
type CallbackVerifier interface {
	VerifyCallback(res *DecryptionResult, proof AuthenticityProof) error
}

// CallbackSink is implemented by the ledger side that consumes oracle
// callbacks. Oracles and test drivers deliver results through it.
type CallbackSink interface {
	OnDecryptionCallback(id CorrelationID, plaintexts []int64, proof AuthenticityProof) error
}
