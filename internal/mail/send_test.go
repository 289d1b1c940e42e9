package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailgate/internal/db"
	"mailgate/internal/provider"
)

type fakeSender struct {
	last provider.SendRequest
	err  error
}

func (f *fakeSender) Send(_ context.Context, req provider.SendRequest) (string, error) {
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return "prov-123", nil
}

func setup(t *testing.T, status db.DomainStatus) (*Mailer, *fakeSender, *db.Domain) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Now()
	d := db.Domain{Name: "example.com", Status: status, VerifiedAt: &now}
	if err := gdb.Create(&d).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	sender := &fakeSender{}
	return NewMailer(gdb, sender), sender, &d
}

func TestSendVerifiedDomain(t *testing.T) {
	m, sender, d := setup(t, db.DomainVerified)

	rec, err := m.Send(context.Background(), d.ID, Message{
		From:    "News <no-reply@Example.com>",
		To:      []string{"rcpt@example.net"},
		Subject: "hello",
		Text:    "hi",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.MessageID == "" || rec.ProviderID != "prov-123" {
		t.Fatalf("receipt %+v", rec)
	}
	if sender.last.Subject != "hello" || len(sender.last.To) != 1 {
		t.Fatalf("relayed request %+v", sender.last)
	}
}

func TestSendUnverifiedDomainRejected(t *testing.T) {
	m, _, d := setup(t, db.DomainVerifying)
	_, err := m.Send(context.Background(), d.ID, Message{From: "a@example.com", To: []string{"b@example.net"}})
	if !errors.Is(err, ErrDomainNotVerified) {
		t.Fatalf("want ErrDomainNotVerified, got %v", err)
	}
}

func TestSendForeignFromRejected(t *testing.T) {
	m, _, d := setup(t, db.DomainVerified)
	_, err := m.Send(context.Background(), d.ID, Message{From: "a@other.example", To: []string{"b@example.net"}})
	if !errors.Is(err, ErrFromMismatch) {
		t.Fatalf("want ErrFromMismatch, got %v", err)
	}
}

func TestSendNoRecipients(t *testing.T) {
	m, _, d := setup(t, db.DomainVerified)
	if _, err := m.Send(context.Background(), d.ID, Message{From: "a@example.com"}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("want ErrNoRecipients, got %v", err)
	}
}

func TestSendProviderThrottlePropagates(t *testing.T) {
	m, sender, d := setup(t, db.DomainVerified)
	sender.err = provider.ErrThrottled
	_, err := m.Send(context.Background(), d.ID, Message{From: "a@example.com", To: []string{"b@example.net"}})
	if !errors.Is(err, provider.ErrThrottled) {
		t.Fatalf("want ErrThrottled, got %v", err)
	}
}
