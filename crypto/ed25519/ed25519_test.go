package ed25519

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/modcert/crypto"
)

func TestKeys(t *testing.T) {
	pub, priv, err := GenKeys()
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), priv.PubKey().Bytes())

	sig, err := priv.Sign([]byte("data"))
	require.NoError(t, err)
	assert.Len(t, sig, ed25519.SignatureSize)
	require.NoError(t, pub.Verify([]byte("data"), sig))
	require.ErrorIs(t, pub.Verify([]byte("date"), sig), crypto.ErrSignatureMismatch)

	_, err = BytesToPubKey(pub[1:])
	require.Error(t, err)

	fromSeed, err := BytesToPrivKey(ed25519.PrivateKey(priv).Seed())
	require.NoError(t, err)
	assert.Equal(t, priv, fromSeed)
}
