// Package local implements the Identity of an actor backed by a private key held in memory.
package local

import (
	"errors"

	"github.com/iykyk-syn/modcert/crypto"
)

type Signer struct {
	privKey crypto.PrivKey
	pubKey  crypto.PubKey
}

func NewSigner(privKey crypto.PrivKey) (*Signer, error) {
	if privKey == nil {
		return nil, errors.New("nil private key")
	}
	pubKey := privKey.PubKey()
	if len(pubKey.Bytes()) == 0 {
		return nil, errors.New("invalid pubKey received")
	}

	return &Signer{
		privKey: privKey,
		pubKey:  pubKey,
	}, nil
}

func (s *Signer) ID() []byte {
	return s.pubKey.Bytes()
}

func (s *Signer) PubKey() crypto.PubKey {
	return s.pubKey
}

func (s *Signer) Sign(msg []byte) (crypto.Signature, error) {
	signature, err := s.privKey.Sign(msg)
	if err != nil {
		return crypto.Signature{}, err
	}

	return crypto.Signature{
		Signer: s.ID(),
		Body:   signature,
	}, nil
}
