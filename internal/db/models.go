package db

import (
	"time"

	"gorm.io/gorm"
)

// DomainStatus is the verification lifecycle state of a sender domain.
type DomainStatus string

const (
	DomainPending   DomainStatus = "pending"
	DomainVerifying DomainStatus = "verifying"
	DomainVerified  DomainStatus = "verified"
	DomainFailed    DomainStatus = "failed"
)

func (s DomainStatus) String() string { return string(s) }

// RecordStatus is the reconciliation state of a single required DNS record.
type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordVerified RecordStatus = "verified"
	RecordMismatch RecordStatus = "mismatch"
)

// RecordPurpose identifies why a record is required. It drives generation
// and display, never matching.
type RecordPurpose string

const (
	PurposeMX    RecordPurpose = "MX"
	PurposeSPF   RecordPurpose = "SPF"
	PurposeDKIM1 RecordPurpose = "DKIM1"
	PurposeDKIM2 RecordPurpose = "DKIM2"
	PurposeDKIM3 RecordPurpose = "DKIM3"
	PurposeDMARC RecordPurpose = "DMARC"
)

type Domain struct {
	ID                    uint         `gorm:"primaryKey" json:"id"`
	Name                  string       `gorm:"uniqueIndex;size:255" json:"name"`
	Status                DomainStatus `gorm:"index;size:20;default:'pending'" json:"status"`
	ProviderIdentityRef   string       `gorm:"size:255" json:"provider_identity_ref,omitempty"`
	DNSHostDetected       bool         `json:"dns_host_detected"`
	DNSHostZoneRef        string       `gorm:"size:255" json:"dns_host_zone_ref,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
	VerificationStartedAt *time.Time   `json:"verification_started_at,omitempty"`
	VerifiedAt            *time.Time   `json:"verified_at,omitempty"`
	FailureReason         *string      `gorm:"size:1000" json:"failure_reason,omitempty"`
	Records               []DNSRecord  `gorm:"constraint:OnDelete:CASCADE" json:"records,omitempty"`
}

type DNSRecord struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	DomainID      uint          `gorm:"index" json:"domain_id"`
	Type          string        `gorm:"size:10" json:"type"`
	Purpose       RecordPurpose `gorm:"size:10" json:"purpose"`
	Name          string        `gorm:"size:255" json:"name"`
	Expected      string        `gorm:"type:text" json:"expected"`
	Actual        *string       `gorm:"type:text" json:"actual,omitempty"`
	Status        RecordStatus  `gorm:"size:20;default:'pending'" json:"status"`
	LastCheckedAt *time.Time    `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// APIKey authorizes sending for one domain. Only a SHA-256 of the secret is
// stored; the prefix allows lookup without the plaintext.
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	DomainID   uint       `gorm:"index" json:"domain_id"`
	Prefix     string     `gorm:"uniqueIndex;size:16" json:"prefix"`
	Hash       string     `gorm:"size:64" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// AuditEvent records one observed state change. The engine only appends;
// querying is left to the API layer.
type AuditEvent struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	DomainID uint      `gorm:"index" json:"domain_id"`
	RecordID *uint     `gorm:"index" json:"record_id,omitempty"`
	Kind     string    `gorm:"size:30" json:"kind"`
	Old      string    `gorm:"size:50" json:"old"`
	New      string    `gorm:"size:50" json:"new"`
	At       time.Time `json:"at"`
}

// IsValid reports whether s is a known domain status.
func (s DomainStatus) IsValid() bool {
	switch s {
	case DomainPending, DomainVerifying, DomainVerified, DomainFailed:
		return true
	}
	return false
}

// Pollable reports whether the reconciliation loop should pick this domain up.
func (d *Domain) Pollable() bool {
	return d.Status == DomainVerifying
}

// DeleteDomainCascade removes a domain together with its records and keys in
// one transaction.
func DeleteDomainCascade(gdb *gorm.DB, d *Domain) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ?", d.ID).Delete(&DNSRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("domain_id = ?", d.ID).Delete(&APIKey{}).Error; err != nil {
			return err
		}
		return tx.Delete(d).Error
	})
}
