package p2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/iykyk-syn/modcert"
)

// ErrNoSubscribers is returned when a report is published while no moderator is subscribed to
// the report topic, so nobody could receive it.
var ErrNoSubscribers = errors.New("no peers subscribed to the report topic")

// ReportHandler receives validated report envelopes.
type ReportHandler func(context.Context, modcert.MsgCert)

// ReportTopic delivers report envelopes to moderators over a pubsub topic.
// Envelopes that are not well-formed are rejected by the topic validator, so they are neither
// delivered nor propagated.
type ReportTopic struct {
	name    string
	pubsub  *pubsub.PubSub
	topic   *pubsub.Topic
	sub     *pubsub.Subscription
	handler ReportHandler

	log *slog.Logger
}

// NewReportTopic instantiates a new ReportTopic for the given network name.
// Received reports are passed to the handler, which may be nil for publish-only nodes.
func NewReportTopic(network string, ps *pubsub.PubSub, handler ReportHandler) *ReportTopic {
	return &ReportTopic{
		name:    "/modcert/reports/" + network,
		pubsub:  ps,
		handler: handler,
		log:     slog.With("module", "p2p-reports"),
	}
}

func (r *ReportTopic) Start() (err error) {
	err = r.pubsub.RegisterTopicValidator(
		r.name,
		r.validate,
		pubsub.WithValidatorTimeout(time.Second),
	)
	if err != nil {
		return err
	}

	r.topic, err = r.pubsub.Join(r.name)
	if err != nil {
		return err
	}

	r.sub, err = r.topic.Subscribe()
	if err != nil {
		return err
	}
	go r.listen()
	return nil
}

func (r *ReportTopic) Stop(context.Context) (err error) {
	r.sub.Cancel()
	err = errors.Join(err, r.topic.Close())
	err = errors.Join(err, r.pubsub.UnregisterTopicValidator(r.name))
	return err
}

// Peers lists peers subscribed to the topic.
func (r *ReportTopic) Peers() []peer.ID {
	return r.topic.ListPeers()
}

// RequestReport implements modcert.ReportRequester. Successful publication to at least one
// subscribed peer is the acknowledgement.
func (r *ReportTopic) RequestReport(ctx context.Context, envelope modcert.MsgCert) error {
	if len(r.topic.ListPeers()) == 0 {
		return ErrNoSubscribers
	}
	data, err := envelope.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	return r.topic.Publish(ctx, data)
}

func (r *ReportTopic) listen() {
	for {
		msg, err := r.sub.Next(context.Background())
		if err != nil {
			return
		}
		if r.handler == nil {
			continue
		}

		var envelope modcert.MsgCert
		if err = envelope.UnmarshalBinary(msg.Data); err != nil {
			// validated already, so this is not expected
			r.log.Error("unmarshalling report", "err", err)
			continue
		}
		r.handler(context.Background(), envelope)
	}
}

// validate checks a report envelope and reports its validity status
func (r *ReportTopic) validate(ctx context.Context, _ peer.ID, msg *pubsub.Message) (res pubsub.ValidationResult) {
	defer func() {
		// recover from potential panics caused by network messages
		err := recover()
		if err != nil {
			r.log.ErrorContext(ctx, "validate report panic", "err", err)
			res = pubsub.ValidationReject
		}
	}()

	var envelope modcert.MsgCert
	if err := envelope.UnmarshalBinary(msg.Data); err != nil {
		r.log.ErrorContext(ctx, "unmarshalling report", "err", err)
		return pubsub.ValidationReject
	}
	if envelope.Reason == "" {
		r.log.ErrorContext(ctx, "report without reason", "cert", envelope.ID())
		return pubsub.ValidationReject
	}
	if err := envelope.VerifyAll(); err != nil {
		r.log.ErrorContext(ctx, "verifying report", "cert", envelope.ID(), "err", err)
		return pubsub.ValidationReject
	}
	return pubsub.ValidationAccept
}
