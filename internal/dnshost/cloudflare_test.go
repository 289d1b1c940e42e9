package dnshost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailgate/internal/config"
	"mailgate/internal/db"
)

type staticNS struct{ ns []string }

func (s staticNS) LookupNS(_ context.Context, _ string) ([]string, error) { return s.ns, nil }

func hostClient(t *testing.T, ns []string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.DNSHostConfig{
		Enabled:    true,
		APIURL:     srv.URL,
		APIToken:   "cf-token",
		NSSuffixes: []string{".ns.cloudflare.com"},
	}, staticNS{ns: ns})
}

func TestDetectMatchingNS(t *testing.T) {
	c := hostClient(t, []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"},
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/zones" || r.URL.Query().Get("name") != "example.com" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL)
			}
			w.Write([]byte(`{"success":true,"result":[{"id":"zone-123","name":"example.com"}]}`))
		})

	d, err := c.Detect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !d.Detected || d.ZoneRef != "zone-123" {
		t.Fatalf("unexpected detection %+v", d)
	}
}

func TestDetectForeignNS(t *testing.T) {
	c := hostClient(t, []string{"ns1.registrar-dns.example"}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("API must not be called when nameservers do not match")
	})

	d, err := c.Detect(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if d.Detected {
		t.Fatalf("expected no detection, got %+v", d)
	}
}

func TestPushRecordsPartialFailure(t *testing.T) {
	c := hostClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var req recordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode push body: %v", err)
		}
		if req.Name == "_dmarc.example.com" {
			w.Write([]byte(`{"success":false,"errors":[{"message":"record already exists"}]}`))
			return
		}
		if req.Type == "MX" {
			if req.Priority == nil || *req.Priority != 10 || req.Content != "inbound-smtp.eu-west-1.amazonaws.com" {
				t.Errorf("MX not split into priority/content: %+v", req)
			}
		}
		w.Write([]byte(`{"success":true}`))
	})

	records := []db.DNSRecord{
		{ID: 1, Type: "MX", Name: "example.com", Expected: "10 inbound-smtp.eu-west-1.amazonaws.com"},
		{ID: 2, Type: "TXT", Name: "example.com", Expected: "v=spf1 include:amazonses.com ~all"},
		{ID: 3, Type: "TXT", Name: "_dmarc.example.com", Expected: "v=DMARC1; p=quarantine; rua=mailto:dmarc@example.com"},
	}
	results, err := c.PushRecords(context.Background(), "zone-123", records)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	if !results[0].OK || !results[1].OK {
		t.Fatalf("expected first two pushes to succeed: %+v", results)
	}
	if results[2].OK || results[2].Error == "" {
		t.Fatalf("expected dmarc push failure to be surfaced per-record: %+v", results[2])
	}
}

func TestPushRecordsEmptyZoneRef(t *testing.T) {
	c := hostClient(t, nil, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := c.PushRecords(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty zone ref")
	}
}
