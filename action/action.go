// Package action implements what can be done with an already certified message:
// its author may delete it and anybody else may report it.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/crypto"
)

var (
	// ErrNotAuthor is returned when anyone but the author attempts deletion.
	ErrNotAuthor = errors.New("only the author may delete a message")
	// ErrSelfReport is returned when the author reports its own message.
	ErrSelfReport = errors.New("authors cannot report their own messages")
	// ErrEmptyReason is returned for reports without a reason.
	ErrEmptyReason = errors.New("report reason is empty")
	// ErrNotDelivered is returned when the collaborator did not acknowledge the request.
	// Retrying is up to the caller.
	ErrNotDelivered = errors.New("request not delivered")
)

// Deleter issues author signed delete requests.
type Deleter struct {
	author    crypto.Signer
	requester modcert.DeleteRequester

	log *slog.Logger
}

func NewDeleter(author crypto.Signer, requester modcert.DeleteRequester) *Deleter {
	return &Deleter{
		author:    author,
		requester: requester,
		log:       slog.With("module", "delete"),
	}
}

// Delete requests a tombstone for the certificate. Requests for certificates of other authors
// fail locally.
func (d *Deleter) Delete(ctx context.Context, cert modcert.MsgCert) error {
	if !cert.IsAuthor(d.author.ID()) {
		return fmt.Errorf("%w: %s", ErrNotAuthor, cert.ID())
	}
	if err := cert.VerifyAll(); err != nil {
		return fmt.Errorf("deleting %s: %w", cert.ID(), err)
	}

	intent, err := modcert.NewDeleteIntent(d.author, cert)
	if err != nil {
		return err
	}
	if err = d.requester.RequestDelete(ctx, intent); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrNotDelivered, cert.ID(), err)
	}

	d.log.InfoContext(ctx, "delete requested", "cert", cert.ID())
	return nil
}

// Reporter forwards reports to moderation review.
type Reporter struct {
	reporter  []byte
	requester modcert.ReportRequester

	log *slog.Logger
}

// NewReporter instantiates a Reporter for the actor with the given public key.
func NewReporter(reporter []byte, requester modcert.ReportRequester) *Reporter {
	return &Reporter{
		reporter:  reporter,
		requester: requester,
		log:       slog.With("module", "report"),
	}
}

// Report sends the envelope, which is the certificate unmodified plus the reason, and returns it.
func (r *Reporter) Report(ctx context.Context, cert modcert.MsgCert, reason string) (modcert.MsgCert, error) {
	if cert.IsAuthor(r.reporter) {
		return modcert.MsgCert{}, fmt.Errorf("%w: %s", ErrSelfReport, cert.ID())
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return modcert.MsgCert{}, ErrEmptyReason
	}
	if err := cert.VerifyAll(); err != nil {
		return modcert.MsgCert{}, fmt.Errorf("reporting %s: %w", cert.ID(), err)
	}

	envelope := cert
	envelope.ModCerts = append([]modcert.ModCert(nil), cert.ModCerts...)
	envelope.Reason = reason
	if err := r.requester.RequestReport(ctx, envelope); err != nil {
		return modcert.MsgCert{}, fmt.Errorf("%w: reporting %s: %w", ErrNotDelivered, cert.ID(), err)
	}

	r.log.InfoContext(ctx, "reported", "cert", cert.ID(), "reason", reason)
	return envelope, nil
}
