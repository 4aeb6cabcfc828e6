package crypto

import (
	"crypto/ed25519"
	"errors"
)

var (
	// ErrBadKey is returned when the public key has the wrong length.
	ErrBadKey = errors.New("bad public key")
	// ErrBadSignatureFormat is returned when the signature has the wrong length.
	ErrBadSignatureFormat = errors.New("bad signature format")
	// ErrSignatureMismatch is returned when a well-formed signature does not match the payload.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Verify checks ed25519 signature of the payload under the given public key.
// It never panics on malformed input and reports the failure kind through
// ErrBadKey, ErrBadSignatureFormat or ErrSignatureMismatch.
func Verify(pubKey, payload, sig []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return ErrBadKey
	}
	if len(sig) != ed25519.SignatureSize {
		return ErrBadSignatureFormat
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), payload, sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifySignature is Verify over a Signature tuple.
func VerifySignature(payload []byte, sig Signature) error {
	return Verify(sig.Signer, payload, sig.Body)
}
