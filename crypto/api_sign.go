package crypto

// Signature is a tuple containing signature body and reference to signing identity.
type Signature struct {
	// Body of the signature.
	Body []byte
	// Signer identity who produced the signature.
	Signer []byte
}

// Signer encapsulates the signing keypair of a single actor, separating key management
// out of the certification protocol.
type Signer interface {
	// ID returns Signer identity, the public key bytes.
	ID() []byte
	// Sign produces a cryptographic Signature over the given payload.
	Sign([]byte) (Signature, error)
}
