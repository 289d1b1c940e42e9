// Package audit appends structured state-change events. The engine only
// emits; querying and retention are the API layer's business.
package audit

import (
	"log"
	"time"

	"gorm.io/gorm"

	"mailgate/internal/db"
)

// Sink receives every domain transition and per-record status change.
type Sink interface {
	DomainStatus(domainID uint, old, new db.DomainStatus, at time.Time)
	RecordStatus(domainID, recordID uint, name string, old, new db.RecordStatus, at time.Time)
}

// Recorder persists events as AuditEvent rows and mirrors them to the log.
// A failed insert is logged and dropped; observability must never stall
// reconciliation.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(gdb *gorm.DB) *Recorder {
	return &Recorder{db: gdb}
}

func (r *Recorder) DomainStatus(domainID uint, old, new db.DomainStatus, at time.Time) {
	ev := db.AuditEvent{
		DomainID: domainID,
		Kind:     "domain_status",
		Old:      string(old),
		New:      string(new),
		At:       at,
	}
	if err := r.db.Create(&ev).Error; err != nil {
		log.Printf("audit: domain %d status event dropped: %v", domainID, err)
	}
	log.Printf("audit: domain %d status %s -> %s", domainID, old, new)
}

func (r *Recorder) RecordStatus(domainID, recordID uint, name string, old, new db.RecordStatus, at time.Time) {
	ev := db.AuditEvent{
		DomainID: domainID,
		RecordID: &recordID,
		Kind:     "record_status",
		Old:      string(old),
		New:      string(new),
		At:       at,
	}
	if err := r.db.Create(&ev).Error; err != nil {
		log.Printf("audit: domain %d record event dropped: %v", domainID, err)
	}
	log.Printf("audit: domain %d record %s status %s -> %s", domainID, name, old, new)
}

// Nop discards events; handy for tests.
type Nop struct{}

func (Nop) DomainStatus(uint, db.DomainStatus, db.DomainStatus, time.Time)        {}
func (Nop) RecordStatus(uint, uint, string, db.RecordStatus, db.RecordStatus, time.Time) {}
