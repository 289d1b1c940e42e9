// Package dnshost talks to a supported DNS hosting provider (Cloudflare-style
// API). Detection is passive; pushing records is an explicit, user-confirmed
// action because it can overwrite what is already published at the host.
package dnshost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mailgate/internal/config"
	"mailgate/internal/db"
	"mailgate/internal/dnscheck"
)

// NSResolver is the one DNS operation detection needs.
type NSResolver interface {
	LookupNS(ctx context.Context, name string) ([]string, error)
}

// Detection is the outcome of matching a domain's nameservers against the
// host's known patterns.
type Detection struct {
	Detected bool   `json:"detected"`
	ZoneRef  string `json:"zone_ref,omitempty"`
}

// PushResult reports the outcome for a single record. Partial failure is
// expected; callers retry only the failed subset.
type PushResult struct {
	RecordID uint   `json:"record_id"`
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

type Client struct {
	cfg      config.DNSHostConfig
	resolver NSResolver
	client   *http.Client
}

func NewClient(cfg config.DNSHostConfig, resolver NSResolver) *Client {
	return &Client{
		cfg:      cfg,
		resolver: resolver,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether host credentials are configured at all.
func (c *Client) Enabled() bool { return c.cfg.Enabled }

// Detect inspects the domain's NS records. If they match the host's
// nameserver patterns it also resolves the zone reference via the host API.
// A matching NS set with no accessible zone still reports Detected so the UI
// can explain why pushing is unavailable.
func (c *Client) Detect(ctx context.Context, domainName string) (Detection, error) {
	nss, err := c.resolver.LookupNS(ctx, domainName)
	if err != nil {
		return Detection{}, fmt.Errorf("detect %s: %w", domainName, err)
	}
	matched := false
	for _, ns := range nss {
		for _, suffix := range c.cfg.NSSuffixes {
			if strings.HasSuffix(dnscheck.Normalize(ns), dnscheck.Normalize(suffix)) {
				matched = true
			}
		}
	}
	if !matched {
		return Detection{}, nil
	}
	ref, err := c.zoneRef(ctx, domainName)
	if err != nil {
		return Detection{Detected: true}, fmt.Errorf("detect %s: %w", domainName, err)
	}
	return Detection{Detected: true, ZoneRef: ref}, nil
}

type zoneListResp struct {
	Success bool `json:"success"`
	Result  []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"result"`
}

func (c *Client) zoneRef(ctx context.Context, domainName string) (string, error) {
	var resp zoneListResp
	if err := c.do(ctx, http.MethodGet, "/zones?name="+url.QueryEscape(domainName), nil, &resp); err != nil {
		return "", err
	}
	if !resp.Success || len(resp.Result) == 0 {
		return "", fmt.Errorf("zone %s not accessible with configured token", domainName)
	}
	return resp.Result[0].ID, nil
}

type recordReq struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority *int   `json:"priority,omitempty"`
}

type recordResp struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PushRecords creates each required record at the host. The result always has
// one entry per input record; the call as a whole only errors on programmer
// misuse (empty zoneRef).
func (c *Client) PushRecords(ctx context.Context, zoneRef string, records []db.DNSRecord) ([]PushResult, error) {
	if zoneRef == "" {
		return nil, fmt.Errorf("push records: empty zone reference")
	}
	results := make([]PushResult, 0, len(records))
	for _, rec := range records {
		req := recordReq{Type: rec.Type, Name: rec.Name, Content: rec.Expected, TTL: 300}
		if rec.Type == "MX" {
			// The host wants priority split out of the record data.
			if pref, host, ok := splitMX(rec.Expected); ok {
				req.Priority = &pref
				req.Content = host
			}
		}
		res := PushResult{RecordID: rec.ID, Name: rec.Name, OK: true}
		if err := c.pushOne(ctx, zoneRef, req); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Client) pushOne(ctx context.Context, zoneRef string, req recordReq) error {
	body, _ := json.Marshal(req)
	var resp recordResp
	if err := c.do(ctx, http.MethodPost, "/zones/"+url.PathEscape(zoneRef)+"/dns_records", bytes.NewReader(body), &resp); err != nil {
		return err
	}
	if !resp.Success {
		if len(resp.Errors) > 0 {
			return fmt.Errorf("host rejected record: %s", resp.Errors[0].Message)
		}
		return fmt.Errorf("host rejected record")
	}
	return nil
}

func splitMX(expected string) (pref int, host string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(expected), " ", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	return n, parts[1], true
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("host returned status %d: %s", resp.StatusCode, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
