package ed25519

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rand"

	"github.com/iykyk-syn/modcert/crypto"
)

type PublicKey []byte

func (pubKey PublicKey) Verify(payload, sig []byte) error {
	return crypto.Verify(pubKey, payload, sig)
}

func (pubKey PublicKey) Bytes() []byte {
	return pubKey
}

type PrivateKey []byte

// Sign signs the message with pure Ed25519, so the message is not prehashed.
func (privKey PrivateKey) Sign(msg []byte) ([]byte, error) {
	return ed25519.PrivateKey(privKey).Sign(rand.Reader, msg, stdcrypto.Hash(0))
}

func (privKey PrivateKey) PubKey() crypto.PubKey {
	public := ed25519.PrivateKey(privKey).Public().(ed25519.PublicKey)
	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, public)
	return key
}

func GenKeys() (PublicKey, PrivateKey, error) {
	pubK, privK, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	public := make(PublicKey, ed25519.PublicKeySize)
	copy(public, pubK)
	private := make(PrivateKey, ed25519.PrivateKeySize)
	copy(private, privK)

	return public, private, nil
}

// BytesToPubKey copies b into a PublicKey, failing with crypto.ErrBadKey on wrong length.
func BytesToPubKey(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, crypto.ErrBadKey
	}

	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return key, nil
}

// BytesToPrivKey accepts either a 32 byte seed or a 64 byte private key.
func BytesToPrivKey(b []byte) (PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return PrivateKey(ed25519.NewKeyFromSeed(b)), nil
	case ed25519.PrivateKeySize:
		key := make(PrivateKey, ed25519.PrivateKeySize)
		copy(key, b)
		return key, nil
	default:
		return nil, crypto.ErrBadKey
	}
}
