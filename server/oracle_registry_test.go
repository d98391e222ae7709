package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veblen3358/secure-reveal-lab/crypto"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
	"github.com/Veblen3358/secure-reveal-lab/server"
	"github.com/Veblen3358/secure-reveal-lab/tdx"
)

func signedRegistration(t *testing.T, priv crypto.PrivateKey, provider server.TEEProvider) *oracle.Signed[server.OracleRegistration] {
	t.Helper()

	pub, err := priv.PublicKey()
	require.NoError(t, err)

	reg := &server.OracleRegistration{
		PublicKey: pub.String(),
		Endpoint:  "http://oracle:8090",
	}
	attestation, err := server.AttestOracleRegistration(provider, reg)
	require.NoError(t, err)
	reg.Attestation = attestation

	signed, err := oracle.NewSigned(priv, reg)
	require.NoError(t, err)
	return signed
}

func TestOracleRegisterWithAttestation(t *testing.T) {
	provider := &tdx.DummyProvider{}
	registry := server.NewOracleRegistry(server.DemoMeasurementSource(), provider, testLogger())

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	entry, err := registry.Register(signedRegistration(t, priv, provider))
	require.NoError(t, err)
	assert.Equal(t, "demo-dummy-attestation", entry.MeasurementID)
	assert.Len(t, registry.Oracles(), 1)
}

func TestOracleRegisterRejectsMismatchedSigner(t *testing.T) {
	provider := &tdx.DummyProvider{}
	registry := server.NewOracleRegistry(server.DemoMeasurementSource(), provider, testLogger())

	// Registration claims one key but is signed by another.
	claimedPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	reg := &server.OracleRegistration{
		PublicKey: claimedPub.String(),
		Endpoint:  "http://oracle:8090",
	}
	signed, err := oracle.NewSigned(otherPriv, reg)
	require.NoError(t, err)

	_, err = registry.Register(signed)
	require.ErrorContains(t, err, "signer does not match")
	assert.Empty(t, registry.Oracles())
}

func TestOracleRegisterRejectsBadAttestation(t *testing.T) {
	provider := &tdx.DummyProvider{}
	registry := server.NewOracleRegistry(server.DemoMeasurementSource(), provider, testLogger())

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed := signedRegistration(t, priv, provider)
	signed.Object.Attestation = []byte("tampered")
	resigned, err := oracle.NewSigned(priv, signed.Object)
	require.NoError(t, err)

	_, err = registry.Register(resigned)
	require.ErrorContains(t, err, "could not verify attestation")
}

func TestOracleRegisterRejectsMissingAttestation(t *testing.T) {
	provider := &tdx.DummyProvider{}
	registry := server.NewOracleRegistry(server.DemoMeasurementSource(), provider, testLogger())

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub, err := priv.PublicKey()
	require.NoError(t, err)

	reg := &server.OracleRegistration{PublicKey: pub.String(), Endpoint: "http://oracle:8090"}
	signed, err := oracle.NewSigned(priv, reg)
	require.NoError(t, err)

	_, err = registry.Register(signed)
	require.ErrorContains(t, err, "no attestation data")
}

func TestOracleRegisterRejectsDisallowedMeasurements(t *testing.T) {
	provider := &tdx.DummyProvider{}
	source := server.NewStaticMeasurementSource(server.PublishedMeasurements{
		{
			MeasurementID: "some-other-build",
			Measurements: map[int]server.MeasurementValue{
				0: {Expected: "ff"},
			},
		},
	})
	registry := server.NewOracleRegistry(source, provider, testLogger())

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	_, err = registry.Register(signedRegistration(t, priv, provider))
	require.ErrorContains(t, err, "attestation is not allowed")
}

func TestVerifyCallbackRequiresRegisteredKey(t *testing.T) {
	provider := &tdx.DummyProvider{}
	registry := server.NewOracleRegistry(server.DemoMeasurementSource(), provider, testLogger())

	_, registeredPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = registry.Register(signedRegistration(t, registeredPriv, provider))
	require.NoError(t, err)

	res := &oracle.DecryptionResult{CorrelationID: "req-1", Plaintexts: []int64{35, 1}}

	proof, err := oracle.SignResult(registeredPriv, res)
	require.NoError(t, err)
	require.NoError(t, registry.VerifyCallback(res, proof))

	// Valid signature by an unregistered key is rejected.
	_, strangerPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	strangerProof, err := oracle.SignResult(strangerPriv, res)
	require.NoError(t, err)
	require.ErrorContains(t, registry.VerifyCallback(res, strangerProof), "unregistered key")

	// Tampered plaintexts fail signature verification.
	forged := &oracle.DecryptionResult{CorrelationID: "req-1", Plaintexts: []int64{0, 0}}
	require.ErrorContains(t, registry.VerifyCallback(forged, proof), "signature not valid")

	// Unregistering the key revokes its callbacks.
	pub, err := registeredPriv.PublicKey()
	require.NoError(t, err)
	registry.Unregister(pub.String())
	require.ErrorContains(t, registry.VerifyCallback(res, proof), "unregistered key")
}

func TestMeasurementsMatch(t *testing.T) {
	allowed := server.PublishedMeasurements{
		{
			MeasurementID: "build-a",
			Measurements: map[int]server.MeasurementValue{
				0: {Expected: "00"},
				1: {Expected: "01"},
			},
		},
	}

	entry, err := server.VerifyMeasurementsMatch(allowed, server.Measurements{0: {0}, 1: {1}, 2: {2}})
	require.NoError(t, err)
	assert.Equal(t, "build-a", entry.MeasurementID)

	_, err = server.VerifyMeasurementsMatch(allowed, server.Measurements{0: {0}, 1: {0xff}})
	require.Error(t, err)

	_, err = server.VerifyMeasurementsMatch(allowed, server.Measurements{0: {0}})
	require.Error(t, err)
}
