// Package submit drives a message through certification:
// Draft -> Broadcasting -> Deciding -> {Published, Rejected, TimedOut}.
package submit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/iykyk-syn/modcert"
	"github.com/iykyk-syn/modcert/broadcast"
	"github.com/iykyk-syn/modcert/crypto"
	"github.com/iykyk-syn/modcert/quorum"
)

// errForeignJudgment is recorded for a moderator that answered with a judgment signed by another one.
var errForeignJudgment = errors.New("judgment signed by another moderator")

var (
	defaultPerAttemptTimeout = time.Second * 2
	defaultSubmissionTimeout = time.Second * 10
	defaultRecentSize        = 256
)

// ModeratorSource provides the current moderator set. Submissions snapshot it once.
type ModeratorSource interface {
	Moderators() *quorum.Moderators
}

// StaticModerators is a ModeratorSource that never changes.
type StaticModerators struct {
	Set *quorum.Moderators
}

func (s StaticModerators) Moderators() *quorum.Moderators {
	return s.Set
}

// Option configures the Controller.
type Option func(*Controller)

// WithClock sets the clock used for timestamps and deadlines.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// WithTimeouts sets the per-moderator attempt timeout and the overall submission deadline.
func WithTimeouts(perAttempt, submission time.Duration) Option {
	return func(c *Controller) {
		c.perAttemptTimeout = perAttempt
		c.submissionTimeout = submission
	}
}

// WithThreshold overrides the default 2n/3+1 approvals. Zero keeps the default.
func WithThreshold(threshold int) Option {
	return func(c *Controller) {
		c.threshold = threshold
	}
}

// WithRejectRule sets when submissions are rejected.
func WithRejectRule(rule quorum.RejectRule) Option {
	return func(c *Controller) {
		c.rule = rule
	}
}

// WithProgress sets the hook observing partial certificates while Deciding.
// It is called synchronously and must not block.
func WithProgress(f func(Outcome)) Option {
	return func(c *Controller) {
		c.progress = f
	}
}

// WithRegisterer registers the Controller's metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Controller) {
		c.registerer = reg
	}
}

// WithRecentSize sets how many finished drafts are remembered to suppress double sends.
func WithRecentSize(size int) Option {
	return func(c *Controller) {
		c.recentSize = size
	}
}

type result struct {
	out Outcome
	err error
}

// Controller submits messages of a single author.
// Submissions are independent of each other, concurrent submissions of the same draft share
// one execution and a finished draft is never broadcast or published again.
type Controller struct {
	author      crypto.Signer
	mods        ModeratorSource
	broadcaster *broadcast.Broadcaster
	publisher   modcert.Publisher

	clock             clock.Clock
	perAttemptTimeout time.Duration
	submissionTimeout time.Duration
	threshold         int
	rule              quorum.RejectRule
	progress          func(Outcome)
	registerer        prometheus.Registerer
	recentSize        int

	tsLk   sync.Mutex
	lastTs int64

	inflight singleflight.Group
	recent   *lru.Cache[string, result]
	metrics  *metrics

	log *slog.Logger
}

// NewController instantiates a new Controller.
func NewController(
	author crypto.Signer,
	mods ModeratorSource,
	transport modcert.Transport,
	publisher modcert.Publisher,
	opts ...Option,
) (*Controller, error) {
	c := &Controller{
		author:            author,
		mods:              mods,
		publisher:         publisher,
		clock:             clock.New(),
		perAttemptTimeout: defaultPerAttemptTimeout,
		submissionTimeout: defaultSubmissionTimeout,
		recentSize:        defaultRecentSize,
		log:               slog.With("module", "submit"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.submissionTimeout <= 0 {
		return nil, errors.New("submission timeout must be positive")
	}

	recent, err := lru.New[string, result](c.recentSize)
	if err != nil {
		return nil, fmt.Errorf("creating recent drafts cache: %w", err)
	}
	c.recent = recent
	c.metrics = newMetrics(c.registerer)
	c.broadcaster = broadcast.NewBroadcaster(transport, broadcast.WithClock(c.clock), broadcast.WithLogger(c.log))
	return c, nil
}

// Submit certifies and publishes new content. Every call is a new Draft with a fresh timestamp.
// On success the Outcome is Published, otherwise the error is a *Failure wrapping
// ErrInvalid, ErrRejected, ErrTimedOut or ErrPublish.
func (c *Controller) Submit(ctx context.Context, content string) (Outcome, error) {
	draft, err := c.NewDraft(content)
	if err != nil {
		return draft, err
	}
	return c.SubmitDraft(ctx, draft.Cert)
}

// NewDraft signs content as a new message. Timestamps of one Controller strictly increase,
// so even identical content submitted within a second is a distinct message.
func (c *Controller) NewDraft(content string) (Outcome, error) {
	msg := modcert.Msg{Content: content, Ts: c.nextTs()}
	if err := msg.Validate(); err != nil {
		out := Outcome{State: StateInvalid, Cert: modcert.MsgCert{Msg: msg}}
		return out, &Failure{Outcome: out, Err: fmt.Errorf("%w: %w", ErrInvalid, err)}
	}

	cert, err := modcert.NewMsgCert(c.author, msg)
	if err != nil {
		out := Outcome{State: StateInvalid, Cert: modcert.MsgCert{Msg: msg}}
		return out, &Failure{Outcome: out, Err: fmt.Errorf("%w: %w", ErrInvalid, err)}
	}
	return Outcome{State: StateDraft, Cert: cert}, nil
}

// SubmitDraft certifies and publishes a signed draft. Drafts are identified by author and
// timestamp: concurrent calls for the same draft share the result and a draft that already
// finished returns its previous result without touching the network.
//
// The submission itself is bounded by the submission timeout only. A caller whose ctx is done
// stops waiting and gets StateDeciding with ctx's error, while the submission carries on for
// the other callers and may still publish.
func (c *Controller) SubmitDraft(ctx context.Context, draft modcert.MsgCert) (Outcome, error) {
	if err := draft.Verify(); err != nil {
		out := Outcome{State: StateInvalid, Cert: draft}
		return out, &Failure{Outcome: out, Err: fmt.Errorf("%w: %w", ErrInvalid, err)}
	}
	if !draft.IsAuthor(c.author.ID()) {
		out := Outcome{State: StateInvalid, Cert: draft}
		return out, &Failure{Outcome: out, Err: fmt.Errorf("%w: draft of another author", ErrInvalid)}
	}

	id := draft.ID()
	if res, ok := c.recent.Get(id); ok {
		c.log.DebugContext(ctx, "draft already submitted", "cert", id, "state", res.out.State)
		return res.out, res.err
	}

	runCtx := context.WithoutCancel(ctx)
	resCh := c.inflight.DoChan(id, func() (any, error) {
		// the draft may have finished between the cache check and here
		if res, ok := c.recent.Get(id); ok {
			return res, nil
		}
		out, err := c.run(runCtx, draft)
		res := result{out: out, err: err}
		c.recent.Add(id, res)
		return res, nil
	})

	select {
	case r := <-resCh:
		if r.Shared {
			c.log.DebugContext(ctx, "joined in-flight submission", "cert", id)
		}
		res := r.Val.(result)
		return res.out, res.err
	case <-ctx.Done():
		out := Outcome{State: StateDeciding, Cert: draft}
		return out, &Failure{Outcome: out, Err: ctx.Err()}
	}
}

func (c *Controller) run(ctx context.Context, draft modcert.MsgCert) (Outcome, error) {
	// snapshot the moderator set once, it must not change mid-flight
	mods := c.mods.Moderators()
	out := Outcome{
		State: StateBroadcasting,
		Cert:  draft,
		Diagnostics: Diagnostics{
			Started: c.clock.Now(),
		},
	}
	if mods == nil {
		out.State = StateInvalid
		return out, &Failure{Outcome: out, Err: fmt.Errorf("%w: no moderators configured", ErrInvalid)}
	}
	out.Diagnostics.ModeratorsVersion = mods.Version()

	opts := []quorum.Option{quorum.WithRejectRule(c.rule)}
	if c.threshold > 0 {
		opts = append(opts, quorum.WithThreshold(c.threshold))
	}
	agg, err := quorum.NewAggregator(draft.Msg, mods, opts...)
	if err != nil {
		out.State = StateInvalid
		return out, &Failure{Outcome: out, Err: fmt.Errorf("%w: %w", ErrInvalid, err)}
	}
	out.Diagnostics.Threshold = agg.Threshold()

	// responses are awaited for the whole submission budget, even after the decision,
	// so late ones are still recorded
	subCtx, cancel := c.clock.WithTimeout(ctx, c.submissionTimeout)
	responses := c.broadcaster.Broadcast(subCtx, draft, mods.List(), c.perAttemptTimeout)

	out.State = StateDeciding
	decision := c.decide(subCtx, agg, responses, &out)
	out.Cert.ModCerts = agg.Certs()
	out.Diagnostics.Finished = c.clock.Now()
	approve, reject, abstain := agg.Counts()
	// the aggregator belongs to the drain from now on
	go c.drain(subCtx, cancel, draft.ID(), agg, responses)

	var publishErr error
	switch decision {
	case quorum.Approved:
		if publishErr = c.publisher.Publish(ctx, out.Cert); publishErr != nil {
			out.State = StateCertified
		} else {
			out.State = StatePublished
		}
	case quorum.Rejected:
		out.State = StateRejected
	default:
		out.State = StateTimedOut
	}

	c.metrics.submission(out.State)
	c.log.InfoContext(ctx, "submission finished",
		"cert", draft.ID(),
		"state", out.State,
		"approve", approve,
		"reject", reject,
		"abstain", abstain,
		"threshold", out.Diagnostics.Threshold,
		"moderators_version", out.Diagnostics.ModeratorsVersion,
		"took", out.Diagnostics.Finished.Sub(out.Diagnostics.Started),
	)
	return out, outcomeErr(out, publishErr)
}

// decide feeds responses to the aggregator until it is final or the submission deadline.
func (c *Controller) decide(ctx context.Context, agg *quorum.Aggregator, responses <-chan broadcast.Response, out *Outcome) quorum.Decision {
	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				// every moderator is done, yet nothing is decided
				return agg.Expire()
			}
			d := c.fold(ctx, agg, resp, out)
			if d.Final() {
				return d
			}
			if c.progress != nil {
				partial := *out
				partial.Cert.ModCerts = agg.Certs()
				c.progress(partial)
			}
		case <-ctx.Done():
			return agg.Expire()
		}
	}
}

// fold records a single response and returns the resulting decision.
func (c *Controller) fold(ctx context.Context, agg *quorum.Aggregator, resp broadcast.Response, out *Outcome) quorum.Decision {
	mo := ModeratorOutcome{Moderator: resp.Moderator, Err: resp.Err, At: c.clock.Now()}
	defer func() {
		out.Diagnostics.Responses = append(out.Diagnostics.Responses, mo)
		c.metrics.response(mo.Result)
	}()

	switch {
	case resp.Timeout():
		// the moderator may still answer, so this is not an abstention yet
		mo.Result = ResultTimeout
		return agg.Decision()
	case resp.Err != nil:
		mo.Result = ResultTransportError
		return agg.Abstain(resp.Moderator.PublicKey)
	}

	d, err := add(agg, resp)
	if err != nil {
		c.log.WarnContext(ctx, "discarding judgment", "moderator", resp.Moderator.Addr, "err", err)
		mo.Result, mo.Err = ResultInvalid, err
		// the moderator has no chance to fix it within this submission
		return agg.Abstain(resp.Moderator.PublicKey)
	}
	if resp.Cert.Status == modcert.StatusApprove {
		mo.Result = ResultApprove
	} else {
		mo.Result = ResultReject
	}
	return d
}

// drain records responses arriving after the decision for audit. They never change it.
func (c *Controller) drain(ctx context.Context, cancel context.CancelFunc, id string, agg *quorum.Aggregator, responses <-chan broadcast.Response) {
	defer cancel()
	for resp := range responses {
		if resp.Err != nil {
			continue
		}
		_, err := add(agg, resp)
		if errors.Is(err, quorum.ErrFinalized) {
			c.metrics.response(ResultLate)
			c.log.InfoContext(ctx, "late judgment",
				"cert", id,
				"moderator", resp.Moderator.Addr,
				"status", resp.Cert.Status,
				"decision", agg.Decision(),
			)
			continue
		}
		if err != nil {
			c.metrics.response(ResultInvalid)
			c.log.WarnContext(ctx, "discarding late judgment", "cert", id, "moderator", resp.Moderator.Addr, "err", err)
		}
	}
}

// add records the judgment on behalf of the moderator that answered,
// so a judgment relayed from another moderator never counts.
func add(agg *quorum.Aggregator, resp broadcast.Response) (quorum.Decision, error) {
	if !bytes.Equal(resp.Cert.PublicKey, resp.Moderator.PublicKey) {
		return agg.Decision(), fmt.Errorf("%w: %X", errForeignJudgment, resp.Cert.PublicKey)
	}
	return agg.Add(resp.Cert)
}

func (c *Controller) nextTs() int64 {
	c.tsLk.Lock()
	defer c.tsLk.Unlock()

	ts := c.clock.Now().Unix()
	if ts <= c.lastTs {
		ts = c.lastTs + 1
	}
	c.lastTs = ts
	return ts
}
