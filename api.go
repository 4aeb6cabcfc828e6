// Package modcert implements moderated yet censorship resilient message publication.
//
// Before a post becomes durable it has to be approved by a quorum of independently operated
// moderators. Every moderator answers with a signed judgment (ModCert) over the canonical
// encoding of the author's message, and the judgments together with the author signature form
// a portable certificate (MsgCert) that anyone can verify offline.
//
// The package defines the data model, the canonical codec and the boundary with external
// collaborators: moderator transport, durable storage and moderation review. Certification
// itself lives in the quorum, broadcast and submit packages.
package modcert

import (
	"context"
)

// Moderator is a member of the moderator set.
type Moderator struct {
	// PublicKey identifies the moderator and verifies its ModCerts.
	PublicKey []byte
	// Addr is the transport address the moderator is reachable at.
	Addr string
}

// Transport delivers a candidate message to a single moderator and returns its judgment.
// Peer discovery and connection management are the Transport's concern.
type Transport interface {
	// SendToModerator sends the signed message to the moderator and awaits its ModCert.
	SendToModerator(context.Context, Moderator, MsgCert) (ModCert, error)
}

// Publisher is the entry point of the durable store for certified messages.
type Publisher interface {
	// Publish persists quorum certified MsgCert.
	Publish(context.Context, MsgCert) error
}

// DeleteRequester accepts signed deletion requests. It is the sole authority flipping
// RetMsgCert.Deleted.
type DeleteRequester interface {
	RequestDelete(context.Context, DeleteIntent) error
}

// ReportRequester forwards report envelopes to moderation review.
type ReportRequester interface {
	RequestReport(context.Context, MsgCert) error
}

// Fetcher is the read path of the durable store.
type Fetcher interface {
	// FetchAll lists every stored certificate, tombstoned ones included.
	FetchAll(context.Context) ([]RetMsgCert, error)
	// FetchByTimestamp lists stored certificates whose message has the given timestamp.
	FetchByTimestamp(context.Context, int64) ([]RetMsgCert, error)
}

// ModLogSink records moderator decisions for audit.
type ModLogSink interface {
	AppendModerationLog(context.Context, ModLogEntry) error
}

// ModLogSource provides the audit trail of moderator decisions.
type ModLogSource interface {
	FetchModerationLogs(context.Context) ([]ModLogEntry, error)
}

// ModConfigStore keeps ModConfig moderators consult in their own decision logic.
type ModConfigStore interface {
	GetModConfig(context.Context) (ModConfig, error)
	SaveModConfig(context.Context, ModConfig) error
}
