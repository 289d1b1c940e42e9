package verify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"mailgate/internal/audit"
	"mailgate/internal/db"
	"mailgate/internal/dnshost"
	"mailgate/internal/provider"
)

// IdentityProvider is the full provider surface the service consumes.
type IdentityProvider interface {
	StatusChecker
	CreateIdentity(ctx context.Context, domainName string) (provider.Identity, error)
	DeleteIdentity(ctx context.Context, domainName string) error
}

// HostClient is the DNS hosting provider surface. Push is only ever invoked
// from an explicit user action relayed by the API layer.
type HostClient interface {
	Enabled() bool
	Detect(ctx context.Context, domainName string) (dnshost.Detection, error)
	PushRecords(ctx context.Context, zoneRef string, records []db.DNSRecord) ([]dnshost.PushResult, error)
}

var (
	ErrInvalidDomainName = errors.New("invalid domain name")
	ErrDomainExists      = errors.New("domain already registered")
	ErrHostUnsupported   = errors.New("domain is not hosted at a supported DNS host")
)

// One label per segment, no scheme, no underscores at label edges. Basic
// format gate only; real proof of control is the verification itself.
var domainNameRe = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// Service implements the inbound engine boundary used by the API layer.
type Service struct {
	db       *gorm.DB
	provider IdentityProvider
	host     HostClient
	sink     audit.Sink
	params   RecordParams

	now func() time.Time
}

func NewService(gdb *gorm.DB, prov IdentityProvider, host HostClient, sink audit.Sink, params RecordParams) *Service {
	return &Service{
		db:       gdb,
		provider: prov,
		host:     host,
		sink:     sink,
		params:   params,
		now:      time.Now,
	}
}

// Register creates the domain, registers the sending identity with the
// provider and stores the full required record set, leaving the domain in
// Verifying for the reconciler to own. No half-registered domain survives a
// provider failure.
func (s *Service) Register(ctx context.Context, name string) (*db.Domain, error) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if !domainNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomainName, name)
	}

	var count int64
	if err := s.db.Model(&db.Domain{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDomainExists, name)
	}

	id, err := s.provider.CreateIdentity(ctx, name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := db.Domain{Name: name, Status: db.DomainPending, ProviderIdentityRef: id.Ref}
	if err := BeginVerification(&d, now); err != nil {
		return nil, err
	}
	d.Records = Requirements(name, id.Tokens, s.params)

	if err := s.db.Create(&d).Error; err != nil {
		// Creating the row failed after the identity exists provider-side;
		// clean up so a retry starts from scratch.
		if derr := s.provider.DeleteIdentity(ctx, name); derr != nil {
			return nil, fmt.Errorf("create domain: %v (identity cleanup also failed: %w)", err, derr)
		}
		return nil, fmt.Errorf("create domain: %w", err)
	}
	s.sink.DomainStatus(d.ID, db.DomainPending, d.Status, now)
	return &d, nil
}

// Restart resets a failed domain to a fresh Verifying attempt.
func (s *Service) Restart(ctx context.Context, domainID uint) (*db.Domain, error) {
	d, err := s.load(domainID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	old := d.Status
	if err := Restart(d, now); err != nil {
		return nil, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.DNSRecord{}).Where("domain_id = ?", d.ID).Updates(map[string]any{
			"status":          db.RecordPending,
			"actual":          nil,
			"last_checked_at": nil,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&db.Domain{}).Where("id = ?", d.ID).Updates(map[string]any{
			"status":                  d.Status,
			"failure_reason":          nil,
			"verified_at":             nil,
			"verification_started_at": d.VerificationStartedAt,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persist restart: %w", err)
	}
	s.sink.DomainStatus(d.ID, old, d.Status, now)
	return d, nil
}

// Delete removes the provider identity first, then the row and everything
// owned by it.
func (s *Service) Delete(ctx context.Context, domainID uint) error {
	d, err := s.load(domainID)
	if err != nil {
		return err
	}
	if err := s.provider.DeleteIdentity(ctx, d.Name); err != nil {
		return err
	}
	return db.DeleteDomainCascade(s.db, d)
}

// DetectHost checks whether the domain's nameservers belong to the supported
// DNS host and caches the outcome on the row so the UI can offer the push
// action.
func (s *Service) DetectHost(ctx context.Context, domainID uint) (*db.Domain, dnshost.Detection, error) {
	d, err := s.load(domainID)
	if err != nil {
		return nil, dnshost.Detection{}, err
	}
	if !s.host.Enabled() {
		return d, dnshost.Detection{}, nil
	}
	det, err := s.host.Detect(ctx, d.Name)
	if err != nil && !det.Detected {
		return nil, dnshost.Detection{}, err
	}
	d.DNSHostDetected = det.Detected
	d.DNSHostZoneRef = det.ZoneRef
	if uerr := s.db.Model(&db.Domain{}).Where("id = ?", d.ID).Updates(map[string]any{
		"dns_host_detected": det.Detected,
		"dns_host_zone_ref": det.ZoneRef,
	}).Error; uerr != nil {
		return nil, dnshost.Detection{}, fmt.Errorf("persist detection: %w", uerr)
	}
	return d, det, err
}

// PushRecords publishes the required records into the detected DNS host.
// Explicit caller-confirmed action; results are per-record.
func (s *Service) PushRecords(ctx context.Context, domainID uint) ([]dnshost.PushResult, error) {
	d, det, err := s.DetectHost(ctx, domainID)
	if err != nil {
		return nil, err
	}
	if !det.Detected || det.ZoneRef == "" {
		return nil, ErrHostUnsupported
	}
	return s.host.PushRecords(ctx, det.ZoneRef, d.Records)
}

func (s *Service) load(domainID uint) (*db.Domain, error) {
	var d db.Domain
	if err := s.db.Preload("Records").First(&d, domainID).Error; err != nil {
		return nil, err
	}
	return &d, nil
}
