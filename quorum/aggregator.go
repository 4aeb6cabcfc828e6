// Package quorum folds moderator judgments into a certification decision.
package quorum

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/iykyk-syn/modcert"
)

var (
	ErrUnknownModerator = errors.New("moderator is not a part of the moderator set")
	ErrInvalidCert      = errors.New("invalid moderator certificate")
	ErrFinalized        = errors.New("decision is already final")
)

// Decision is the state of the aggregation.
type Decision uint8

const (
	Pending Decision = iota
	Approved
	Rejected
	TimedOut
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("decision(%d)", uint8(d))
	}
}

// Final reports whether the decision can no longer change.
func (d Decision) Final() bool {
	return d != Pending
}

// RejectRule selects when rejections finalize the aggregation.
type RejectRule uint8

const (
	// RejectWhenUnreachable rejects once approvals can no longer reach the threshold.
	RejectWhenUnreachable RejectRule = iota
	// RejectOnFirst rejects on the first verified reject judgment.
	RejectOnFirst
)

func (r RejectRule) String() string {
	if r == RejectOnFirst {
		return "first-reject"
	}
	return "unreachable"
}

// ParseRejectRule parses the textual form produced by RejectRule.String.
func ParseRejectRule(s string) (RejectRule, error) {
	switch s {
	case "", "unreachable":
		return RejectWhenUnreachable, nil
	case "first-reject":
		return RejectOnFirst, nil
	default:
		return 0, fmt.Errorf("unknown reject rule %q", s)
	}
}

type Option func(*Aggregator) error

// WithThreshold overrides the default byzantine quorum threshold.
func WithThreshold(threshold int) Option {
	return func(a *Aggregator) error {
		if threshold <= 0 || threshold > a.mods.Len() {
			return fmt.Errorf("threshold %d out of range [1, %d]", threshold, a.mods.Len())
		}
		a.threshold = threshold
		return nil
	}
}

// WithRejectRule sets the RejectRule.
func WithRejectRule(rule RejectRule) Option {
	return func(a *Aggregator) error {
		a.rule = rule
		return nil
	}
}

// Aggregator accumulates ModCerts for a single Msg against a Moderators snapshot.
//
// Judgments are keyed by moderator public key and the last one wins, so a moderator may
// correct itself before the decision, but never vote twice. Once the decision is final it
// never changes, later judgments are kept for audit only.
//
// Aggregator is not safe for concurrent use.
type Aggregator struct {
	msg       modcert.Msg
	mods      *Moderators
	threshold int
	rule      RejectRule

	votes     map[string]modcert.ModCert
	abstained map[string]struct{}

	decision Decision
	final    []modcert.ModCert
	late     []modcert.ModCert
}

// NewAggregator instantiates an Aggregator for the given message.
func NewAggregator(msg modcert.Msg, mods *Moderators, opts ...Option) (*Aggregator, error) {
	if mods == nil || mods.Len() == 0 {
		return nil, errors.New("empty moderator set")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	a := &Aggregator{
		msg:       msg,
		mods:      mods,
		threshold: mods.DefaultThreshold(),
		votes:     make(map[string]modcert.ModCert, mods.Len()),
		abstained: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add verifies the judgment and folds it into the tally, returning the resulting Decision.
// Judgments from unknown moderators or with invalid signatures are never counted.
// After the decision is final, valid judgments are recorded as late and ErrFinalized is returned.
func (a *Aggregator) Add(mc modcert.ModCert) (Decision, error) {
	if _, ok := a.mods.GetByPubKey(mc.PublicKey); !ok {
		return a.decision, fmt.Errorf("%w: %X", ErrUnknownModerator, mc.PublicKey)
	}
	if err := mc.Verify(a.msg); err != nil {
		return a.decision, fmt.Errorf("%w from %X: %w", ErrInvalidCert, mc.PublicKey, err)
	}
	if a.decision.Final() {
		a.late = append(a.late, mc)
		return a.decision, ErrFinalized
	}

	key := string(mc.PublicKey)
	a.votes[key] = mc
	delete(a.abstained, key)
	return a.evaluate(), nil
}

// Abstain records that the moderator will not answer, e.g. it is unreachable.
// Abstentions count towards neither side, but may make the quorum unreachable.
func (a *Aggregator) Abstain(pubKey []byte) Decision {
	if a.decision.Final() {
		return a.decision
	}
	key := string(pubKey)
	if _, ok := a.mods.GetByPubKey(pubKey); !ok {
		return a.decision
	}
	if _, ok := a.votes[key]; ok {
		return a.decision
	}
	a.abstained[key] = struct{}{}
	return a.evaluate()
}

// Expire finalizes a Pending aggregation as TimedOut.
func (a *Aggregator) Expire() Decision {
	if !a.decision.Final() {
		a.finalize(TimedOut)
	}
	return a.decision
}

// Decision returns the current Decision.
func (a *Aggregator) Decision() Decision {
	return a.decision
}

// Threshold returns the number of approvals required.
func (a *Aggregator) Threshold() int {
	return a.threshold
}

// Counts returns the number of approvals, rejections and abstentions in the tally.
func (a *Aggregator) Counts() (approve, reject, abstain int) {
	for _, mc := range a.votes {
		if mc.Status == modcert.StatusApprove {
			approve++
		} else {
			reject++
		}
	}
	return approve, reject, len(a.abstained)
}

// Certs returns the verified judgments ordered by moderator public key.
// Once final, it returns the judgments the decision was made with.
func (a *Aggregator) Certs() []modcert.ModCert {
	if a.decision.Final() {
		out := make([]modcert.ModCert, len(a.final))
		copy(out, a.final)
		return out
	}
	return a.sorted()
}

// Late returns valid judgments received after the decision became final.
func (a *Aggregator) Late() []modcert.ModCert {
	out := make([]modcert.ModCert, len(a.late))
	copy(out, a.late)
	return out
}

func (a *Aggregator) evaluate() Decision {
	approve, reject, abstain := a.Counts()
	total := a.mods.Len()
	outstanding := total - approve - reject - abstain

	switch {
	case approve >= a.threshold:
		a.finalize(Approved)
	case a.rule == RejectOnFirst && reject > 0:
		a.finalize(Rejected)
	case approve+outstanding < a.threshold && reject > 0:
		// quorum is unreachable and at least one moderator explicitly rejected
		a.finalize(Rejected)
	case approve+outstanding < a.threshold && outstanding == 0:
		// nobody is left to answer and nobody rejected
		a.finalize(TimedOut)
	}
	return a.decision
}

func (a *Aggregator) finalize(d Decision) {
	a.decision = d
	a.final = a.sorted()
}

func (a *Aggregator) sorted() []modcert.ModCert {
	out := make([]modcert.ModCert, 0, len(a.votes))
	for _, mc := range a.votes {
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].PublicKey, out[j].PublicKey) == -1
	})
	return out
}
