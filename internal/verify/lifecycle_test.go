package verify

import (
	"errors"
	"testing"
	"time"

	"mailgate/internal/db"
)

func TestLifecycleHappyPath(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &db.Domain{ID: 1, Status: db.DomainPending}

	if err := BeginVerification(d, now); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if d.Status != db.DomainVerifying || d.VerificationStartedAt == nil || !d.VerificationStartedAt.Equal(now) {
		t.Fatalf("unexpected state after begin: %+v", d)
	}

	later := now.Add(time.Hour)
	if err := MarkVerified(d, later); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if d.Status != db.DomainVerified || d.VerifiedAt == nil || !d.VerifiedAt.Equal(later) {
		t.Fatalf("unexpected state after verify: %+v", d)
	}
}

func TestInvalidTransitionsFailFast(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		d    db.Domain
		fn   func(*db.Domain) error
	}{
		{"verify pending", db.Domain{Status: db.DomainPending}, func(d *db.Domain) error { return MarkVerified(d, now) }},
		{"verify verified", db.Domain{Status: db.DomainVerified}, func(d *db.Domain) error { return MarkVerified(d, now) }},
		{"timeout verified", db.Domain{Status: db.DomainVerified}, func(d *db.Domain) error { return MarkTimedOut(d) }},
		{"restart verifying", db.Domain{Status: db.DomainVerifying}, func(d *db.Domain) error { return Restart(d, now) }},
		{"restart verified", db.Domain{Status: db.DomainVerified}, func(d *db.Domain) error { return Restart(d, now) }},
		{"begin verifying", db.Domain{Status: db.DomainVerifying}, func(d *db.Domain) error { return BeginVerification(d, now) }},
	}
	for _, tt := range tests {
		if err := tt.fn(&tt.d); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s: want ErrInvalidTransition, got %v", tt.name, err)
		}
	}
}

func TestTimeoutTransition(t *testing.T) {
	started := time.Now().Add(-time.Hour)
	d := &db.Domain{Status: db.DomainVerifying, VerificationStartedAt: &started}
	if err := MarkTimedOut(d); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if d.Status != db.DomainFailed {
		t.Fatalf("status %s want failed", d.Status)
	}
	if d.FailureReason == nil || *d.FailureReason != TimeoutReason {
		t.Fatalf("failure reason %v", d.FailureReason)
	}
}

func TestRestartResetsFully(t *testing.T) {
	now := time.Now()
	old := now.Add(-100 * time.Hour)
	reason := TimeoutReason
	actual := "stale value"
	d := &db.Domain{
		Status:                db.DomainFailed,
		FailureReason:         &reason,
		VerificationStartedAt: &old,
		Records: []db.DNSRecord{
			{Status: db.RecordVerified, Actual: &actual, LastCheckedAt: &old},
			{Status: db.RecordMismatch, Actual: &actual, LastCheckedAt: &old},
		},
	}
	if err := Restart(d, now); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if d.Status != db.DomainVerifying || d.FailureReason != nil || d.VerifiedAt != nil {
		t.Fatalf("unexpected domain state: %+v", d)
	}
	if d.VerificationStartedAt == nil || !d.VerificationStartedAt.Equal(now) {
		t.Fatalf("start not reset: %v", d.VerificationStartedAt)
	}
	for i, rec := range d.Records {
		if rec.Status != db.RecordPending || rec.Actual != nil || rec.LastCheckedAt != nil {
			t.Fatalf("record %d not reset: %+v", i, rec)
		}
	}
}

func TestTimedOut(t *testing.T) {
	now := time.Now()
	past := now.Add(-73 * time.Hour)
	d := &db.Domain{Status: db.DomainVerifying, VerificationStartedAt: &past}
	if !TimedOut(d, now, 72*time.Hour) {
		t.Fatal("expected timed out after 73h with 72h budget")
	}
	if TimedOut(d, now, 74*time.Hour) {
		t.Fatal("unexpected timeout with 74h budget")
	}
	if TimedOut(&db.Domain{}, now, 0) {
		t.Fatal("domain without start timestamp cannot time out")
	}
}
