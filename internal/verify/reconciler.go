package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"mailgate/internal/audit"
	"mailgate/internal/config"
	"mailgate/internal/db"
	"mailgate/internal/dnscheck"
)

// Resolver is the public-DNS surface the loop consumes.
type Resolver interface {
	Lookup(ctx context.Context, name, recordType string) (dnscheck.Result, error)
}

// StatusChecker is the provider's DKIM verification signal. Read-only.
type StatusChecker interface {
	DKIMStatus(ctx context.Context, domainName string) (bool, error)
}

// Reconciler drives every Verifying domain toward Verified or Failed by
// comparing required DNS records against live answers. One tick reconciles
// each pollable domain independently; a failure in one domain never blocks
// the others.
type Reconciler struct {
	db       *gorm.DB
	resolver Resolver
	provider StatusChecker
	sink     audit.Sink

	timeout      time.Duration
	workers      int
	requireDMARC bool
	verbose      bool

	now func() time.Time // injected clock
}

func NewReconciler(gdb *gorm.DB, resolver Resolver, provider StatusChecker, sink audit.Sink, cfg *config.Config) *Reconciler {
	return &Reconciler{
		db:           gdb,
		resolver:     resolver,
		provider:     provider,
		sink:         sink,
		timeout:      cfg.VerifyTimeout(),
		workers:      cfg.Verify.Workers,
		requireDMARC: cfg.RequireDMARC(),
		verbose:      cfg.Log.VerifyVerbose,
		now:          time.Now,
	}
}

// Tick reconciles all Verifying domains once. Safe to call only from a
// single-flight scheduler; within the tick, domains fan out over a bounded
// worker pool and each domain's writes stay on one worker.
func (r *Reconciler) Tick(ctx context.Context) error {
	now := r.now()

	var domains []db.Domain
	if err := r.db.Preload("Records").Where("status = ?", db.DomainVerifying).Find(&domains).Error; err != nil {
		return fmt.Errorf("load verifying domains: %w", err)
	}
	if len(domains) == 0 {
		return nil
	}
	if r.verbose {
		log.Printf("verify: tick reconciling %d domain(s)", len(domains))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range domains {
		d := &domains[i]
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("verify: domain %d (%s): panic: %v", d.ID, d.Name, p)
				}
			}()
			err := r.reconcileDomain(ctx, d, now)
			if err == nil {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Shutdown: stop spawning work; per-domain writes are atomic,
				// so abandoning between domains is safe.
				return err
			}
			// Job-level retry policy: leave the domain untouched and pick it
			// up again next tick.
			log.Printf("verify: domain %d (%s): %v (retrying next tick)", d.ID, d.Name, err)
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) reconcileDomain(ctx context.Context, d *db.Domain, now time.Time) error {
	if len(d.Records) == 0 {
		return fmt.Errorf("invariant violated: no required DNS records")
	}
	if d.VerificationStartedAt == nil {
		return fmt.Errorf("invariant violated: verifying without a start timestamp")
	}

	if TimedOut(d, now, r.timeout) {
		if err := MarkTimedOut(d); err != nil {
			return err
		}
		if err := r.persistDomainStatus(d); err != nil {
			return fmt.Errorf("persist timeout: %w", err)
		}
		r.sink.DomainStatus(d.ID, db.DomainVerifying, d.Status, now)
		log.Printf("verify: domain %s failed: %s", d.Name, TimeoutReason)
		return nil
	}

	type recordChange struct {
		rec *db.DNSRecord
		old db.RecordStatus
	}
	var changes []recordChange

	for i := range d.Records {
		rec := &d.Records[i]
		if rec.Status == db.RecordVerified {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.resolver.Lookup(ctx, rec.Name, rec.Type)
		if errors.Is(err, dnscheck.ErrUnavailable) {
			// Transient: leave status and observation untouched.
			log.Printf("verify: domain %s record %s: %v", d.Name, rec.Name, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup %s/%s: %w", rec.Name, rec.Type, err)
		}

		old := rec.Status
		t := now
		rec.LastCheckedAt = &t
		if matched, ok := matchAny(res, rec.Expected); ok {
			rec.Status = db.RecordVerified
			rec.Actual = &matched
		} else {
			rec.Status = db.RecordMismatch
			rec.Actual = nil
			if res.Found {
				v := res.Value
				rec.Actual = &v
			}
		}
		changes = append(changes, recordChange{rec: rec, old: old})
	}

	providerOK := false
	if ok, err := r.provider.DKIMStatus(ctx, d.Name); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Transient: absorbed, the next tick asks again.
		log.Printf("verify: domain %s: provider status check failed: %v", d.Name, err)
	} else {
		providerOK = ok
	}

	oldStatus := d.Status
	if providerOK && r.gateSatisfied(d) {
		if err := MarkVerified(d, now); err != nil {
			return err
		}
	}

	// One atomic write per domain; a vanished row is not an error.
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, ch := range changes {
			if err := tx.Model(&db.DNSRecord{}).Where("id = ?", ch.rec.ID).Updates(map[string]any{
				"status":          ch.rec.Status,
				"actual":          ch.rec.Actual,
				"last_checked_at": ch.rec.LastCheckedAt,
			}).Error; err != nil {
				return err
			}
		}
		if d.Status != oldStatus {
			return tx.Model(&db.Domain{}).
				Where("id = ? AND status = ?", d.ID, oldStatus).
				Updates(map[string]any{
					"status":      d.Status,
					"verified_at": d.VerifiedAt,
				}).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	for _, ch := range changes {
		if ch.old != ch.rec.Status {
			r.sink.RecordStatus(d.ID, ch.rec.ID, ch.rec.Name, ch.old, ch.rec.Status, now)
		}
	}
	if d.Status != oldStatus {
		r.sink.DomainStatus(d.ID, oldStatus, d.Status, now)
		log.Printf("verify: domain %s verified", d.Name)
	}
	return nil
}

// gateSatisfied reports whether every gating record is Verified. The DMARC
// row can be excluded from gating by policy; it is still checked and shown.
func (r *Reconciler) gateSatisfied(d *db.Domain) bool {
	for _, rec := range d.Records {
		if !r.requireDMARC && rec.Purpose == db.PurposeDMARC {
			continue
		}
		if rec.Status != db.RecordVerified {
			return false
		}
	}
	return true
}

func (r *Reconciler) persistDomainStatus(d *db.Domain) error {
	return r.db.Model(&db.Domain{}).
		Where("id = ? AND status = ?", d.ID, db.DomainVerifying).
		Updates(map[string]any{
			"status":         d.Status,
			"failure_reason": d.FailureReason,
		}).Error
}

func matchAny(res dnscheck.Result, expected string) (string, bool) {
	for _, v := range res.Values {
		if v == expected {
			return v, true
		}
	}
	return "", false
}
