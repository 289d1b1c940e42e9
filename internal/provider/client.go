// Package provider wraps the bulk-email provider's identity and send API
// behind the narrow surface the engine needs. Provider-specific failure modes
// are mapped to sentinel errors here so nothing upstream has to know about
// the wire protocol.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailgate/internal/config"
)

var (
	// ErrThrottled marks a transient provider-side rate limit; callers defer
	// to the next tick instead of failing the domain.
	ErrThrottled = errors.New("provider throttled")
	// ErrIdentityExists means the identity is already registered with the
	// provider; retryable for our purposes (registration is idempotent).
	ErrIdentityExists = errors.New("identity already exists")
	// ErrNotFound means the provider has no such identity.
	ErrNotFound = errors.New("identity not found")
)

// Identity is a provider-registered sending identity. Providers issue exactly
// three DKIM signing tokens per domain.
type Identity struct {
	Ref    string
	Tokens [3]string
}

type Client struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

type createIdentityReq struct {
	EmailIdentity string `json:"EmailIdentity"`
}

type dkimAttributes struct {
	Status string   `json:"Status"`
	Tokens []string `json:"Tokens"`
}

type identityResp struct {
	IdentityName   string         `json:"IdentityName"`
	IdentityType   string         `json:"IdentityType"`
	DkimAttributes dkimAttributes `json:"DkimAttributes"`
}

// CreateIdentity registers domainName as a sending identity and returns the
// opaque identity reference plus the three DKIM tokens.
func (c *Client) CreateIdentity(ctx context.Context, domainName string) (Identity, error) {
	body, _ := json.Marshal(createIdentityReq{EmailIdentity: domainName})
	var resp identityResp
	if err := c.do(ctx, http.MethodPost, "/v2/email/identities", bytes.NewReader(body), &resp); err != nil {
		return Identity{}, fmt.Errorf("create identity %s: %w", domainName, err)
	}
	id := Identity{Ref: resp.IdentityName}
	if id.Ref == "" {
		id.Ref = domainName
	}
	if len(resp.DkimAttributes.Tokens) != 3 {
		return Identity{}, fmt.Errorf("create identity %s: provider returned %d dkim tokens, want 3",
			domainName, len(resp.DkimAttributes.Tokens))
	}
	copy(id.Tokens[:], resp.DkimAttributes.Tokens)
	return id, nil
}

// DKIMStatus reports whether the provider considers DKIM for domainName
// verified. Read-only and idempotent.
func (c *Client) DKIMStatus(ctx context.Context, domainName string) (bool, error) {
	var resp identityResp
	if err := c.do(ctx, http.MethodGet, "/v2/email/identities/"+url.PathEscape(domainName), nil, &resp); err != nil {
		return false, fmt.Errorf("dkim status %s: %w", domainName, err)
	}
	return strings.EqualFold(resp.DkimAttributes.Status, "SUCCESS"), nil
}

// DeleteIdentity removes the identity. Deleting an unknown identity is not
// an error.
func (c *Client) DeleteIdentity(ctx context.Context, domainName string) error {
	err := c.do(ctx, http.MethodDelete, "/v2/email/identities/"+url.PathEscape(domainName), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete identity %s: %w", domainName, err)
	}
	return nil
}

// SendRequest is one outbound message relayed to the provider.
type SendRequest struct {
	From    string   `json:"FromEmailAddress"`
	To      []string `json:"Destination"`
	Subject string   `json:"Subject"`
	Text    string   `json:"TextBody,omitempty"`
	HTML    string   `json:"HtmlBody,omitempty"`
}

type sendResp struct {
	MessageID string `json:"MessageId"`
}

// Send relays one message and returns the provider's message id.
func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	body, _ := json.Marshal(req)
	var resp sendResp
	if err := c.do(ctx, http.MethodPost, "/v2/email/outbound-emails", bytes.NewReader(body), &resp); err != nil {
		return "", fmt.Errorf("send from %s: %w", req.From, err)
	}
	return resp.MessageID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case resp.StatusCode == http.StatusConflict:
		return ErrIdentityExists
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
