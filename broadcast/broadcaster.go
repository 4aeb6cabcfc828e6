// Package broadcast fans a candidate message out to the moderator set and fans their
// judgments back in.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/iykyk-syn/modcert"
)

// ErrAttemptTimeout is reported for a moderator that did not answer within the per-attempt timeout.
// The moderator may still answer late, in which case another Response follows.
var ErrAttemptTimeout = errors.New("moderator attempt timed out")

// Response is a single moderator outcome.
type Response struct {
	Moderator modcert.Moderator
	// Cert is set when Err is nil.
	Cert modcert.ModCert
	// Err is ErrAttemptTimeout or a transport error.
	Err error
	// Late is set when the Response follows an ErrAttemptTimeout for the same moderator.
	Late bool
}

// Timeout reports whether the Response is a per-attempt timeout.
func (r Response) Timeout() bool {
	return errors.Is(r.Err, ErrAttemptTimeout)
}

type Option func(*Broadcaster)

// WithClock sets the clock used for per-attempt timers.
func WithClock(clk clock.Clock) Option {
	return func(b *Broadcaster) {
		b.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.log = log
	}
}

// Broadcaster sends messages over the Transport to every moderator independently.
// It keeps no state between broadcasts.
type Broadcaster struct {
	transport modcert.Transport
	clock     clock.Clock
	log       *slog.Logger
}

// NewBroadcaster instantiates a new Broadcaster over the given Transport.
func NewBroadcaster(transport modcert.Transport, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		transport: transport,
		clock:     clock.New(),
		log:       slog.With("module", "broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcast sends the signed message to every moderator concurrently and streams back their
// outcomes in arrival order. A moderator that does not answer within perAttemptTimeout is
// reported with ErrAttemptTimeout, but its answer is still delivered if it arrives before ctx
// is done. Non-positive perAttemptTimeout disables per-attempt timeouts.
//
// The channel is closed once every moderator call has completed or ctx is done.
func (b *Broadcaster) Broadcast(ctx context.Context, cert modcert.MsgCert, mods []modcert.Moderator, perAttemptTimeout time.Duration) <-chan Response {
	// every moderator produces at most two responses: timeout and a late outcome
	out := make(chan Response, len(mods)*2)

	var wg sync.WaitGroup
	wg.Add(len(mods))
	for _, m := range mods {
		go func(m modcert.Moderator) {
			defer wg.Done()
			b.call(ctx, cert, m, perAttemptTimeout, out)
		}(m)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (b *Broadcaster) call(ctx context.Context, cert modcert.MsgCert, mod modcert.Moderator, perAttemptTimeout time.Duration, out chan<- Response) {
	type result struct {
		cert modcert.ModCert
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		mc, err := b.transport.SendToModerator(ctx, mod, cert)
		resCh <- result{cert: mc, err: err}
	}()

	var timeoutCh <-chan time.Time
	if perAttemptTimeout > 0 {
		timer := b.clock.Timer(perAttemptTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var timedOut bool
	for {
		select {
		case res := <-resCh:
			if res.err != nil {
				b.log.DebugContext(ctx, "sending to moderator", "moderator", mod.Addr, "late", timedOut, "err", res.err)
			}
			out <- Response{Moderator: mod, Cert: res.cert, Err: res.err, Late: timedOut}
			return
		case <-timeoutCh:
			timedOut, timeoutCh = true, nil
			out <- Response{Moderator: mod, Err: ErrAttemptTimeout}
		case <-ctx.Done():
			return
		}
	}
}
