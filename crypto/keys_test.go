package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("decryption result payload")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	require.True(t, sig.Verify(pub, msg))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("original"))
	require.NoError(t, err)
	require.False(t, sig.Verify(pub, []byte("tampered")))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("payload")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	require.False(t, sig.Verify(otherPub, msg))
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	parsed, err := NewPublicKeyFromString(pub.String())
	require.NoError(t, err)
	require.Equal(t, pub.Bytes(), parsed.Bytes())

	derived, err := priv.PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub.String(), derived.String())
}
