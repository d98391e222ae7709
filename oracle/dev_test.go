package oracle

import (
	"context"
	"testing"

	"github.com/Veblen3358/secure-reveal-lab/crypto"
	"github.com/stretchr/testify/require"
)

func TestDevImportAndDecode(t *testing.T) {
	copro := NewDevCoprocessor()
	ctx := context.Background()

	external := EncodeExternal(42)
	handle, err := copro.ImportCiphertext(ctx, external, ProveExternal(external))
	require.NoError(t, err)

	value, err := DecodeHandle(handle)
	require.NoError(t, err)
	require.Equal(t, int64(42), value)
}

func TestDevImportRejectsBadProof(t *testing.T) {
	copro := NewDevCoprocessor()
	ctx := context.Background()

	external := EncodeExternal(7)
	wrongProof := ProveExternal(EncodeExternal(8))

	_, err := copro.ImportCiphertext(ctx, external, wrongProof)
	require.ErrorContains(t, err, "proof invalid")
}

func TestDevAddSumsPlaintexts(t *testing.T) {
	copro := NewDevCoprocessor()
	ctx := context.Background()

	values := []int64{3, -1, 10}
	var sum Handle
	for i, v := range values {
		ext := EncodeExternal(v)
		h, err := copro.ImportCiphertext(ctx, ext, ProveExternal(ext))
		require.NoError(t, err)
		if i == 0 {
			sum = h
			continue
		}
		sum, err = copro.Add(ctx, sum, h)
		require.NoError(t, err)
	}

	got, err := DecodeHandle(sum)
	require.NoError(t, err)
	require.Equal(t, int64(12), got)
}

func TestDevHandlesAreUnlinkable(t *testing.T) {
	copro := NewDevCoprocessor()
	ctx := context.Background()

	ext := EncodeExternal(5)
	h1, err := copro.ImportCiphertext(ctx, ext, ProveExternal(ext))
	require.NoError(t, err)
	h2, err := copro.ImportCiphertext(ctx, ext, ProveExternal(ext))
	require.NoError(t, err)

	// Same plaintext, different nonce, different handle.
	require.NotEqual(t, h1, h2)
}

func TestDevGrantBookkeeping(t *testing.T) {
	copro := NewDevCoprocessor()
	ctx := context.Background()

	ext := EncodeExternal(1)
	h, err := copro.ImportCiphertext(ctx, ext, ProveExternal(ext))
	require.NoError(t, err)

	require.NoError(t, copro.Grant(ctx, h, "ledger"))
	require.NoError(t, copro.Grant(ctx, h, "alice"))
	require.Equal(t, []string{"ledger", "alice"}, copro.Grants(h))

	require.Error(t, copro.Grant(ctx, "not-a-handle", "alice"))
}

func TestMockOracleDeliversSignedResult(t *testing.T) {
	copro := NewDevCoprocessor()
	mock, err := NewMockOracle()
	require.NoError(t, err)
	ctx := context.Background()

	var handles []Handle
	for _, v := range []int64{1, 0} {
		ext := EncodeExternal(v)
		h, err := copro.ImportCiphertext(ctx, ext, ProveExternal(ext))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	id, err := mock.RequestDecryption(ctx, handles)
	require.NoError(t, err)

	res, proof, err := mock.Result(id)
	require.NoError(t, err)
	require.Equal(t, id, res.CorrelationID)
	require.Equal(t, []int64{1, 0}, res.Plaintexts)
	require.NoError(t, proof.Verify(res))

	// Tampering with the plaintexts breaks the proof.
	res.Plaintexts[0] = 99
	require.Error(t, proof.Verify(res))
}

func TestSignedEnvelopeRecover(t *testing.T) {
	type payload struct {
		Endpoint string `json:"endpoint"`
	}

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(priv, &payload{Endpoint: "http://oracle:8090"})
	require.NoError(t, err)

	obj, signer, err := signed.Recover()
	require.NoError(t, err)
	require.Equal(t, "http://oracle:8090", obj.Endpoint)
	require.Equal(t, signed.PublicKey.String(), signer.String())

	signed.Object.Endpoint = "http://evil:1"
	_, _, err = signed.Recover()
	require.Error(t, err)
}
