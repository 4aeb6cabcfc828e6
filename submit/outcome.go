package submit

import (
	"errors"
	"fmt"
	"time"

	"github.com/iykyk-syn/modcert"
)

var (
	// ErrInvalid is a local validation failure. Nothing reached the network.
	ErrInvalid = errors.New("invalid submission")
	// ErrRejected means moderators rejected the message or quorum became unreachable.
	ErrRejected = errors.New("submission rejected")
	// ErrTimedOut means no decision was reached before the submission deadline.
	ErrTimedOut = errors.New("submission timed out")
	// ErrPublish means the message was certified, but the store did not accept it.
	ErrPublish = errors.New("publishing certified message")
)

// State of a submission.
type State uint8

const (
	StateDraft State = iota
	StateBroadcasting
	StateDeciding
	// StateCertified is reached when quorum approved, but publishing failed.
	// The certificate is complete and may be published again.
	StateCertified
	StatePublished
	StateRejected
	StateTimedOut
	// StateInvalid is reached on local validation failures.
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateBroadcasting:
		return "broadcasting"
	case StateDeciding:
		return "deciding"
	case StateCertified:
		return "certified"
	case StatePublished:
		return "published"
	case StateRejected:
		return "rejected"
	case StateTimedOut:
		return "timed-out"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Final reports whether no further transitions are possible.
func (s State) Final() bool {
	return s >= StateCertified
}

// Outcome is the result of a submission. Cert carries the final certificate when Published,
// the partial one while Deciding and whatever was gathered otherwise.
type Outcome struct {
	State       State
	Cert        modcert.MsgCert
	Diagnostics Diagnostics
}

// Result classifies a single moderator response.
type Result string

const (
	ResultApprove        Result = "approve"
	ResultReject         Result = "reject"
	ResultTimeout        Result = "timeout"
	ResultTransportError Result = "transport_error"
	ResultInvalid        Result = "invalid"
	ResultLate           Result = "late"
)

// ModeratorOutcome is a single moderator response as observed by the submission.
type ModeratorOutcome struct {
	Moderator modcert.Moderator
	Result    Result
	// Err is set for timeouts, transport errors and invalid judgments.
	Err error
	At  time.Time
}

// Diagnostics record how a submission was decided. They are for audit only.
type Diagnostics struct {
	// ModeratorsVersion is the version of the moderator set snapshot the submission used.
	ModeratorsVersion uint64
	Threshold         int
	Started, Finished time.Time
	// Responses in arrival order. A moderator may appear twice: timed out, then late.
	Responses []ModeratorOutcome
}

// Failure is returned for submissions that did not reach StatePublished.
type Failure struct {
	Outcome Outcome
	Err     error
}

func (f *Failure) Error() string {
	if f.Outcome.Cert.PublicKey == nil {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %s", f.Outcome.Cert.ID(), f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// outcomeErr maps a final Outcome to its caller-facing error.
func outcomeErr(out Outcome, publishErr error) error {
	switch out.State {
	case StatePublished:
		return nil
	case StateCertified:
		return &Failure{Outcome: out, Err: fmt.Errorf("%w: %w", ErrPublish, publishErr)}
	case StateRejected:
		return &Failure{Outcome: out, Err: ErrRejected}
	case StateTimedOut:
		return &Failure{Outcome: out, Err: ErrTimedOut}
	default:
		return &Failure{Outcome: out, Err: fmt.Errorf("unexpected final state %s", out.State)}
	}
}
