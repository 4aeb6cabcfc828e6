// Package moderator answers moderation requests on behalf of a single moderator.
//
// How a moderator decides is a pluggable Policy. The Service only enforces the protocol:
// it refuses requests with forged authorship and signs whatever the Policy decided.
package moderator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/crypto"
)

// Policy decides on a message.
type Policy interface {
	Judge(context.Context, modcert.Msg) (modcert.Status, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(context.Context, modcert.Msg) (modcert.Status, error)

func (f PolicyFunc) Judge(ctx context.Context, msg modcert.Msg) (modcert.Status, error) {
	return f(ctx, msg)
}

type Option func(*Service)

// WithLogSink records every decision into the sink.
func WithLogSink(sink modcert.ModLogSink) Option {
	return func(s *Service) {
		s.logs = sink
	}
}

// WithClock sets the clock used to timestamp ModLogEntries.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clock = clk
	}
}

// Service signs judgments over incoming messages.
type Service struct {
	signer crypto.Signer
	policy Policy
	logs   modcert.ModLogSink
	clock  clock.Clock

	log *slog.Logger
}

// NewService instantiates a new Service.
func NewService(signer crypto.Signer, policy Policy, opts ...Option) *Service {
	s := &Service{
		signer: signer,
		policy: policy,
		clock:  clock.New(),
		log:    slog.With("module", "moderator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Moderate verifies authorship of the message and returns the signed judgment of the Policy.
func (s *Service) Moderate(ctx context.Context, cert modcert.MsgCert) (modcert.ModCert, error) {
	if err := cert.Verify(); err != nil {
		return modcert.ModCert{}, err
	}

	status, err := s.policy.Judge(ctx, cert.Msg)
	if err != nil {
		return modcert.ModCert{}, fmt.Errorf("judging: %w", err)
	}

	mc, err := modcert.SignJudgment(s.signer, cert.Msg, status)
	if err != nil {
		return modcert.ModCert{}, err
	}
	s.log.DebugContext(ctx, "judged", "cert", cert.ID(), "status", status)

	if s.logs != nil {
		entry := modcert.ModLogEntry{
			PublicKey: s.signer.ID(),
			Content:   cert.Msg.Content,
			Timestamp: s.clock.Now().Unix(),
			Status:    status,
		}
		if err = s.logs.AppendModerationLog(ctx, entry); err != nil {
			// the judgment is signed already, losing the audit record must not lose the vote
			s.log.ErrorContext(ctx, "appending moderation log", "cert", cert.ID(), "err", err)
		}
	}
	return mc, nil
}

// Review handles a report envelope delivered to the moderator. Reports are recorded for
// manual review; verdicts on them are out of this package's scope.
func (s *Service) Review(ctx context.Context, envelope modcert.MsgCert) {
	s.log.InfoContext(ctx, "report received",
		"cert", envelope.ID(),
		"reason", envelope.Reason,
		"mod_certs", len(envelope.ModCerts),
	)
}
