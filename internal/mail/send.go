// Package mail is the outbound relay: one provider call per accepted
// message, allowed only for domains that finished verification.
package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"mailgate/internal/db"
	"mailgate/internal/provider"
)

var (
	ErrDomainNotVerified = errors.New("sender domain is not verified")
	ErrFromMismatch      = errors.New("from address does not belong to the key's domain")
	ErrNoRecipients      = errors.New("message has no recipients")
)

// Sender is the provider's outbound surface.
type Sender interface {
	Send(ctx context.Context, req provider.SendRequest) (string, error)
}

type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Receipt identifies an accepted message: our id plus the provider's.
type Receipt struct {
	MessageID  string `json:"message_id"`
	ProviderID string `json:"provider_id,omitempty"`
}

type Mailer struct {
	db     *gorm.DB
	sender Sender
}

func NewMailer(gdb *gorm.DB, sender Sender) *Mailer {
	return &Mailer{db: gdb, sender: sender}
}

// Send relays msg on behalf of the domain the API key is bound to.
func (m *Mailer) Send(ctx context.Context, domainID uint, msg Message) (Receipt, error) {
	if len(msg.To) == 0 {
		return Receipt{}, ErrNoRecipients
	}

	var d db.Domain
	if err := m.db.First(&d, domainID).Error; err != nil {
		return Receipt{}, fmt.Errorf("load domain: %w", err)
	}
	if d.Status != db.DomainVerified {
		return Receipt{}, fmt.Errorf("%w: %s is %s", ErrDomainNotVerified, d.Name, d.Status)
	}

	addr, err := netmail.ParseAddress(msg.From)
	if err != nil {
		return Receipt{}, fmt.Errorf("parse from address: %w", err)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 || !strings.EqualFold(addr.Address[at+1:], d.Name) {
		return Receipt{}, fmt.Errorf("%w: %s vs %s", ErrFromMismatch, addr.Address, d.Name)
	}

	providerID, err := m.sender.Send(ctx, provider.SendRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: ulid.Make().String(), ProviderID: providerID}, nil
}
