package server

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veblen3358/secure-reveal-lab/crypto"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// TEEProvider abstracts attestation generation and verification.
type TEEProvider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(attestationReport []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// OracleRegistration is the signed payload an oracle submits to register its
// callback-signing key. The attestation binds the key to the endpoint, so a
// registration cannot be replayed for a different deployment.
type OracleRegistration struct {
	PublicKey   string `json:"public_key"`
	Endpoint    string `json:"endpoint"`
	Attestation []byte `json:"attestation"`
}

// RegisteredOracle is a key the ledger accepts decryption results from.
type RegisteredOracle struct {
	PublicKey     crypto.PublicKey
	Endpoint      string
	MeasurementID string
}

// OracleRegistry tracks the keys of attested decryption oracles. It doubles
// as the ledger's CallbackVerifier: a decryption result is authentic only if
// its proof checks out and the signing key was registered here.
type OracleRegistry struct {
	measurements MeasurementSource
	provider     TEEProvider
	log          *slog.Logger

	mu      sync.RWMutex
	oracles map[string]*RegisteredOracle
}

// NewOracleRegistry creates a registry. When provider is nil, registrations
// are accepted without attestation; only use that in tests and demos.
func NewOracleRegistry(measurements MeasurementSource, provider TEEProvider, log *slog.Logger) *OracleRegistry {
	return &OracleRegistry{
		measurements: measurements,
		provider:     provider,
		log:          log,
		oracles:      make(map[string]*RegisteredOracle),
	}
}

// Register verifies a signed registration and records the oracle's key.
// Re-registering a key overwrites the previous entry.
func (r *OracleRegistry) Register(signedReg *oracle.Signed[OracleRegistration]) (*RegisteredOracle, error) {
	reg, signer, err := signedReg.Recover()
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	pubKey, err := crypto.NewPublicKeyFromString(reg.PublicKey)
	if err != nil {
		return nil, errors.New("invalid public key")
	}
	if signer.String() != pubKey.String() {
		return nil, errors.New("signer does not match claimed public key")
	}
	if reg.Endpoint == "" {
		return nil, errors.New("missing endpoint")
	}

	entry := &RegisteredOracle{PublicKey: pubKey, Endpoint: reg.Endpoint}

	if r.provider != nil {
		if len(reg.Attestation) == 0 {
			return nil, errors.New("no attestation data")
		}

		var reportData [64]byte
		copy(reportData[:], ReportDataForOracle(reg.Endpoint, pubKey))
		measurements, err := r.provider.Verify(reg.Attestation, reportData)
		if err != nil {
			return nil, fmt.Errorf("could not verify attestation: %w", err)
		}

		if r.measurements != nil {
			allowed, err := r.measurements.GetAllowedMeasurements()
			if err != nil {
				return nil, fmt.Errorf("could not fetch allowed measurements: %w", err)
			}
			matched, err := VerifyMeasurementsMatch(allowed, measurements)
			if err != nil {
				return nil, fmt.Errorf("attestation is not allowed: %w", err)
			}
			entry.MeasurementID = matched.MeasurementID
		}
	}

	r.mu.Lock()
	r.oracles[pubKey.String()] = entry
	r.mu.Unlock()

	r.log.Info("oracle registered",
		"pubkey", pubKey.String(),
		"endpoint", entry.Endpoint,
		"measurement_id", entry.MeasurementID)
	return entry, nil
}

// Unregister removes an oracle key. Results signed by it are rejected from
// then on.
func (r *OracleRegistry) Unregister(publicKey string) {
	r.mu.Lock()
	delete(r.oracles, publicKey)
	r.mu.Unlock()
}

// Oracles returns the currently registered oracles.
func (r *OracleRegistry) Oracles() []*RegisteredOracle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*RegisteredOracle, 0, len(r.oracles))
	for _, o := range r.oracles {
		result = append(result, o)
	}
	return result
}

// VerifyCallback implements oracle.CallbackVerifier. A result is accepted
// only if the proof's signature is valid and the signing key is registered.
func (r *OracleRegistry) VerifyCallback(res *oracle.DecryptionResult, proof oracle.AuthenticityProof) error {
	if err := proof.Verify(res); err != nil {
		return err
	}

	r.mu.RLock()
	_, registered := r.oracles[proof.PublicKey.String()]
	r.mu.RUnlock()
	if !registered {
		return fmt.Errorf("result %s signed by unregistered key %s", res.CorrelationID, proof.PublicKey.String())
	}
	return nil
}

var _ oracle.CallbackVerifier = (*OracleRegistry)(nil)

// ReportDataForOracle computes the attestation report data binding an
// oracle's signing key to its decrypt endpoint.
func ReportDataForOracle(endpoint string, pubKey crypto.PublicKey) []byte {
	hash := sha256.New()
	hash.Write([]byte(endpoint))
	hash.Write(pubKey.Bytes())
	return hash.Sum(nil)
}

// AttestOracleRegistration generates attestation evidence for a registration.
// Returns nil evidence when no provider is configured.
func AttestOracleRegistration(provider TEEProvider, reg *OracleRegistration) ([]byte, error) {
	if provider == nil {
		return nil, nil
	}
	pubKey, err := crypto.NewPublicKeyFromString(reg.PublicKey)
	if err != nil {
		return nil, errors.New("invalid public key")
	}
	var reportData [64]byte
	copy(reportData[:], ReportDataForOracle(reg.Endpoint, pubKey))
	return provider.Attest(reportData)
}
