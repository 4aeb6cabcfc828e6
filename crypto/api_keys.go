package crypto

// PubKey is the public half of an actor identity. Authors and moderators are known by its bytes.
type PubKey interface {
	Bytes() []byte
	// Verify checks the signature over payload, failing the same way the package level Verify does.
	Verify(payload, sig []byte) error
}

// PrivKey is the secret half of an actor identity.
type PrivKey interface {
	Sign([]byte) ([]byte, error)
	PubKey() PubKey
}
