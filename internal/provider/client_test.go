package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailgate/internal/config"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{Endpoint: srv.URL, APIKey: "test-key", TimeoutSec: 2})
}

func TestCreateIdentity(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/email/identities" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Write([]byte(`{"IdentityName":"example.com","IdentityType":"DOMAIN",
			"DkimAttributes":{"Status":"PENDING","Tokens":["tok1","tok2","tok3"]}}`))
	})

	id, err := c.CreateIdentity(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id.Ref != "example.com" {
		t.Fatalf("ref=%q", id.Ref)
	}
	if id.Tokens != [3]string{"tok1", "tok2", "tok3"} {
		t.Fatalf("tokens=%v", id.Tokens)
	}
}

func TestCreateIdentityWrongTokenCount(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"DkimAttributes":{"Tokens":["only-one"]}}`))
	})
	if _, err := c.CreateIdentity(context.Background(), "example.com"); err == nil {
		t.Fatal("expected error for short token list")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, ErrThrottled},
		{http.StatusConflict, ErrIdentityExists},
	}
	for _, tt := range tests {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
		})
		_, err := c.CreateIdentity(context.Background(), "example.com")
		if !errors.Is(err, tt.want) {
			t.Fatalf("status %d: got %v want %v", tt.code, err, tt.want)
		}
	}
}

func TestDKIMStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/email/identities/example.com" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"DkimAttributes":{"Status":"SUCCESS","Tokens":["a","b","c"]}}`))
	})

	ok, err := c.DKIMStatus(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !ok {
		t.Fatal("expected verified")
	}
}

func TestDeleteIdentityMissingIsOK(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := c.DeleteIdentity(context.Background(), "gone.example.com"); err != nil {
		t.Fatalf("delete of unknown identity should be nil, got %v", err)
	}
}

func TestSend(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/email/outbound-emails" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"MessageId":"0100018f-abc"}`))
	})

	id, err := c.Send(context.Background(), SendRequest{From: "no-reply@example.com", To: []string{"rcpt@example.net"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "0100018f-abc" {
		t.Fatalf("message id %q", id)
	}
}
