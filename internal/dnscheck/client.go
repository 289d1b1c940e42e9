package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrUnavailable means every configured resolver failed at the transport
// level. It is distinct from a clean "record does not exist" answer and must
// not be treated as a mismatch by callers.
var ErrUnavailable = errors.New("dns resolution unavailable")

// Result is the outcome of a successful lookup. Found=false means at least
// one resolver answered authoritatively that the record does not exist.
type Result struct {
	Found  bool
	Value  string   // first answer, normalized
	Values []string // all answers of the requested type, normalized, in answer order
}

// Client queries public DNS through an ordered resolver list with
// per-resolver fallback. It holds no state between calls.
type Client struct {
	resolvers []string
	client    *dns.Client

	// exchange is swappable for tests.
	exchange func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, error)
}

func NewClient(resolvers []string) *Client {
	c := &Client{
		resolvers: resolvers,
		client:    &dns.Client{Timeout: 3 * time.Second},
	}
	c.exchange = func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, error) {
		in, _, err := c.client.ExchangeContext(ctx, m, addr)
		return in, err
	}
	return c
}

var qtypes = map[string]uint16{
	"MX":    dns.TypeMX,
	"TXT":   dns.TypeTXT,
	"CNAME": dns.TypeCNAME,
	"A":     dns.TypeA,
	"NS":    dns.TypeNS,
}

// Lookup queries name/recordType against each resolver in order. A resolver
// that answers (even with an empty result) settles the call; transport and
// server failures fall through to the next resolver. ErrUnavailable is
// returned only when every resolver failed.
func (c *Client) Lookup(ctx context.Context, name, recordType string) (Result, error) {
	qtype, ok := qtypes[strings.ToUpper(recordType)]
	if !ok {
		return Result{}, fmt.Errorf("unsupported record type %q", recordType)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, addr := range c.resolvers {
		in, err := c.exchange(ctx, m, addr)
		if err != nil {
			lastErr = err
			log.Printf("dnscheck: resolver %s failed for %s/%s: %v", addr, name, recordType, err)
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
		default:
			// SERVFAIL/REFUSED says nothing about the record; try the next one.
			lastErr = fmt.Errorf("resolver %s: rcode %s", addr, dns.RcodeToString[in.Rcode])
			continue
		}
		values := answerValues(in, qtype)
		if len(values) == 0 {
			return Result{Found: false}, nil
		}
		return Result{Found: true, Value: values[0], Values: values}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no resolvers configured")
	}
	return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// LookupNS returns the authoritative nameservers for name, normalized, using
// the same fallback chain as Lookup.
func (c *Client) LookupNS(ctx context.Context, name string) ([]string, error) {
	res, err := c.Lookup(ctx, name, "NS")
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

func answerValues(in *dns.Msg, qtype uint16) []string {
	var out []string
	for _, rr := range in.Answer {
		if rr.Header().Rrtype != qtype {
			// CNAME chains show up when querying other types; skip them.
			continue
		}
		var v string
		switch r := rr.(type) {
		case *dns.MX:
			v = fmt.Sprintf("%d %s", r.Preference, r.Mx)
		case *dns.TXT:
			v = strings.Join(r.Txt, "")
		case *dns.CNAME:
			v = r.Target
		case *dns.NS:
			v = r.Ns
		case *dns.A:
			v = r.A.String()
		default:
			continue
		}
		out = append(out, Normalize(v))
	}
	return out
}
