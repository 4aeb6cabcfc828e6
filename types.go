package modcert

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/iykyk-syn/modcert/crypto"
)

var (
	ErrEmptyContent = errors.New("empty content")
	ErrBadTimestamp = errors.New("timestamp must be positive")
	ErrMalformed    = errors.New("malformed certificate")
)

// Status is a moderator judgment.
type Status uint8

const (
	StatusReject  Status = 0
	StatusApprove Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusApprove:
		return "approve"
	case StatusReject:
		return "reject"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Msg is the authored content. It is immutable once signed.
type Msg struct {
	Content string
	// Ts is the creation time in seconds since epoch.
	Ts int64
}

// Validate rejects messages that must never be signed.
func (m Msg) Validate() error {
	if m.Ts <= 0 {
		return ErrBadTimestamp
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	if !utf8.ValidString(m.Content) {
		return fmt.Errorf("%w: content is not valid utf8", ErrMalformed)
	}
	return nil
}

// ModCert is a single moderator's signed judgment over (Msg, Status).
type ModCert struct {
	Sign      []byte
	PublicKey []byte
	Status    Status
}

// Verify checks the moderator signature against the canonical judgment of msg.
func (mc ModCert) Verify(msg Msg) error {
	if mc.Status != StatusApprove && mc.Status != StatusReject {
		return fmt.Errorf("%w: unknown status %d", ErrMalformed, mc.Status)
	}
	payload, err := JudgmentBytes(msg, mc.Status)
	if err != nil {
		return err
	}
	return crypto.Verify(mc.PublicKey, payload, mc.Sign)
}

// SignJudgment produces moderator's ModCert for the given message.
func SignJudgment(signer crypto.Signer, msg Msg, status Status) (ModCert, error) {
	payload, err := JudgmentBytes(msg, status)
	if err != nil {
		return ModCert{}, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return ModCert{}, fmt.Errorf("signing judgment: %w", err)
	}
	return ModCert{Sign: sig.Body, PublicKey: sig.Signer, Status: status}, nil
}

// MsgCert is a message bundled with its author signature and moderator judgments gathered so far.
type MsgCert struct {
	// PublicKey of the author.
	PublicKey []byte
	Msg       Msg
	// ModCerts are unique by PublicKey.
	ModCerts []ModCert
	// Sign is author signature over Msg.
	Sign []byte
	// Reason is set only on report envelopes and is not covered by any signature.
	Reason string
}

// NewMsgCert signs msg as its author producing a MsgCert without any judgments.
func NewMsgCert(author crypto.Signer, msg Msg) (MsgCert, error) {
	payload, err := msg.SigningBytes()
	if err != nil {
		return MsgCert{}, err
	}
	sig, err := author.Sign(payload)
	if err != nil {
		return MsgCert{}, fmt.Errorf("signing message: %w", err)
	}
	return MsgCert{
		PublicKey: sig.Signer,
		Msg:       msg,
		ModCerts:  []ModCert{},
		Sign:      sig.Body,
	}, nil
}

// Verify checks the author signature. A MsgCert failing it is not well-formed at all.
func (c MsgCert) Verify() error {
	payload, err := c.Msg.SigningBytes()
	if err != nil {
		return err
	}
	if err := crypto.Verify(c.PublicKey, payload, c.Sign); err != nil {
		return fmt.Errorf("verifying author signature: %w", err)
	}
	return nil
}

// VerifyAll checks the author signature, every moderator judgment and uniqueness of moderators.
func (c MsgCert) VerifyAll() error {
	if err := c.Verify(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.ModCerts))
	for _, mc := range c.ModCerts {
		key := string(mc.PublicKey)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate judgment from %X", ErrMalformed, mc.PublicKey)
		}
		seen[key] = struct{}{}
		if err := mc.Verify(c.Msg); err != nil {
			return fmt.Errorf("verifying judgment from %X: %w", mc.PublicKey, err)
		}
	}
	return nil
}

// ID uniquely identifies the certificate by author and timestamp.
func (c MsgCert) ID() string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(c.PublicKey), c.Msg.Ts)
}

// IsAuthor reports whether the given public key authored the message.
func (c MsgCert) IsAuthor(pubKey []byte) bool {
	return len(pubKey) != 0 && bytes.Equal(c.PublicKey, pubKey)
}

// Deleted is a tri-state tombstone flag.
type Deleted uint8

const (
	DeletedUnknown Deleted = iota
	DeletedNo
	DeletedYes
)

// RetMsgCert is a MsgCert as returned by the durable store.
type RetMsgCert struct {
	MsgCert
	Deleted Deleted
}

// DeleteIntent is an author signed request to tombstone an existing certificate.
type DeleteIntent struct {
	Cert MsgCert
	Sign []byte
}

// NewDeleteIntent signs a delete request for the certificate. It does not check authorship.
func NewDeleteIntent(author crypto.Signer, cert MsgCert) (DeleteIntent, error) {
	payload, err := DeleteBytes(cert)
	if err != nil {
		return DeleteIntent{}, err
	}
	sig, err := author.Sign(payload)
	if err != nil {
		return DeleteIntent{}, fmt.Errorf("signing delete intent: %w", err)
	}
	return DeleteIntent{Cert: cert, Sign: sig.Body}, nil
}

// Verify checks that the intent is signed by the certificate author.
func (d DeleteIntent) Verify() error {
	payload, err := DeleteBytes(d.Cert)
	if err != nil {
		return err
	}
	return crypto.Verify(d.Cert.PublicKey, payload, d.Sign)
}

// ModLogEntry is an audit record of a single moderator decision.
type ModLogEntry struct {
	PublicKey []byte
	Content   string
	Timestamp int64
	Status    Status
}

// ModConfig is moderation configuration consumed by moderators' own decision logic.
type ModConfig struct {
	Forbidden  []string
	Thresholds map[string]float64
}

// Validate checks that all thresholds lie within [0, 1].
func (c ModConfig) Validate() error {
	for cat, v := range c.Thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold for %q out of range: %v", cat, v)
		}
	}
	return nil
}
