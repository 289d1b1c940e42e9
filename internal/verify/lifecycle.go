package verify

import (
	"errors"
	"fmt"
	"time"

	"mailgate/internal/db"
)

// ErrInvalidTransition is returned when a lifecycle transition is applied to
// a domain in the wrong state. This is a programming error at the call site,
// never a normal runtime outcome.
var ErrInvalidTransition = errors.New("invalid domain state transition")

// TimeoutReason is the FailureReason recorded when verification exceeds its
// deadline.
const TimeoutReason = "Verification timed out"

// BeginVerification moves a freshly registered domain from Pending to
// Verifying and stamps the attempt start.
func BeginVerification(d *db.Domain, now time.Time) error {
	if d.Status != db.DomainPending {
		return transitionErr(d, db.DomainVerifying)
	}
	d.Status = db.DomainVerifying
	t := now
	d.VerificationStartedAt = &t
	return nil
}

// MarkVerified fires when every gating record is Verified and the provider
// agrees. Verified is terminal except for deletion.
func MarkVerified(d *db.Domain, now time.Time) error {
	if d.Status != db.DomainVerifying {
		return transitionErr(d, db.DomainVerified)
	}
	d.Status = db.DomainVerified
	t := now
	d.VerifiedAt = &t
	return nil
}

// MarkTimedOut is the only path into Failed.
func MarkTimedOut(d *db.Domain) error {
	if d.Status != db.DomainVerifying {
		return transitionErr(d, db.DomainFailed)
	}
	d.Status = db.DomainFailed
	reason := TimeoutReason
	d.FailureReason = &reason
	return nil
}

// Restart begins a fresh verification attempt for a failed domain: the
// failure and any prior observations are fully reset rather than repaired
// incrementally.
func Restart(d *db.Domain, now time.Time) error {
	if d.Status != db.DomainFailed {
		return transitionErr(d, db.DomainVerifying)
	}
	d.Status = db.DomainVerifying
	d.FailureReason = nil
	d.VerifiedAt = nil
	t := now
	d.VerificationStartedAt = &t
	for i := range d.Records {
		d.Records[i].Status = db.RecordPending
		d.Records[i].Actual = nil
		d.Records[i].LastCheckedAt = nil
	}
	return nil
}

// TimedOut reports whether the current attempt has exceeded the deadline.
func TimedOut(d *db.Domain, now time.Time, timeout time.Duration) bool {
	if d.VerificationStartedAt == nil {
		return false
	}
	return now.Sub(*d.VerificationStartedAt) > timeout
}

func transitionErr(d *db.Domain, to db.DomainStatus) error {
	return fmt.Errorf("%w: domain %d %s -> %s", ErrInvalidTransition, d.ID, d.Status, to)
}
