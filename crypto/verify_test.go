package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/modcert/crypto"
	"github.com/iykyk-syn/modcert/crypto/ed25519"
	"github.com/iykyk-syn/modcert/crypto/local"
)

func TestVerify(t *testing.T) {
	_, priv, err := ed25519.GenKeys()
	require.NoError(t, err)
	signer, err := local.NewSigner(priv)
	require.NoError(t, err)

	payload := []byte("payload")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	require.NoError(t, crypto.VerifySignature(payload, sig))
	require.ErrorIs(t, crypto.Verify(sig.Signer, []byte("other"), sig.Body), crypto.ErrSignatureMismatch)
	require.ErrorIs(t, crypto.Verify(sig.Signer[:5], payload, sig.Body), crypto.ErrBadKey)
	require.ErrorIs(t, crypto.Verify(sig.Signer, payload, sig.Body[1:]), crypto.ErrBadSignatureFormat)
	require.ErrorIs(t, crypto.Verify(nil, payload, nil), crypto.ErrBadKey)
}
