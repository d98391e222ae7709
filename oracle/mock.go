package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veblen3358/secure-reveal-lab/crypto"
	"github.com/google/uuid"
)

// MockOracle implements DecryptionOracle for tests. Requests are parked
// until the test explicitly delivers them, which makes the asynchronous
// callback timing fully deterministic: tests can interleave other ledger
// operations between request and callback, replay callbacks, or never
// deliver at all.
type MockOracle struct {
	mu         sync.Mutex
	pending    map[CorrelationID][]Handle
	signingKey crypto.PrivateKey

	// RequestErr, when set, is returned by RequestDecryption.
	RequestErr error
}

// NewMockOracle creates a mock oracle with a fresh signing key.
func NewMockOracle() (*MockOracle, error) {
	_, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &MockOracle{
		pending:    make(map[CorrelationID][]Handle),
		signingKey: priv,
	}, nil
}

// PublicKey returns the oracle's signing public key.
func (o *MockOracle) PublicKey() crypto.PublicKey {
	pub, _ := o.signingKey.PublicKey()
	return pub
}

// RequestDecryption parks the handles and returns a fresh correlation id.
func (o *MockOracle) RequestDecryption(ctx context.Context, handles []Handle) (CorrelationID, error) {
	if o.RequestErr != nil {
		return "", o.RequestErr
	}

	id := CorrelationID(uuid.NewString())
	parked := make([]Handle, len(handles))
	copy(parked, handles)

	o.mu.Lock()
	o.pending[id] = parked
	o.mu.Unlock()
	return id, nil
}

// PendingIDs returns the correlation ids of undelivered requests.
func (o *MockOracle) PendingIDs() []CorrelationID {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]CorrelationID, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	return ids
}

// Result decrypts the parked handles for id and signs the outcome. The
// request stays parked so tests can deliver the same result twice.
func (o *MockOracle) Result(id CorrelationID) (*DecryptionResult, AuthenticityProof, error) {
	o.mu.Lock()
	handles, ok := o.pending[id]
	o.mu.Unlock()
	if !ok {
		return nil, AuthenticityProof{}, fmt.Errorf("no parked request for %s", id)
	}

	plaintexts := make([]int64, len(handles))
	for i, h := range handles {
		v, err := DecodeHandle(h)
		if err != nil {
			return nil, AuthenticityProof{}, err
		}
		plaintexts[i] = v
	}

	res := &DecryptionResult{CorrelationID: id, Plaintexts: plaintexts}
	proof, err := SignResult(o.signingKey, res)
	if err != nil {
		return nil, AuthenticityProof{}, err
	}
	return res, proof, nil
}

// Deliver decrypts the parked request and pushes the signed result into sink.
func (o *MockOracle) Deliver(id CorrelationID, sink CallbackSink) error {
	res, proof, err := o.Result(id)
	if err != nil {
		return err
	}
	return sink.OnDecryptionCallback(res.CorrelationID, res.Plaintexts, proof)
}

// DeliverAll delivers every parked request in unspecified order.
func (o *MockOracle) DeliverAll(sink CallbackSink) error {
	for _, id := range o.PendingIDs() {
		if err := o.Deliver(id, sink); err != nil {
			return err
		}
	}
	return nil
}

// AcceptAllVerifier accepts any callback whose signature checks out against
// the embedded public key, regardless of oracle registration. Tests only.
type AcceptAllVerifier struct{}

// VerifyCallback checks the proof signature and nothing else.
func (AcceptAllVerifier) VerifyCallback(res *DecryptionResult, proof AuthenticityProof) error {
	return proof.Verify(res)
}
