package verify

import (
	"reflect"
	"testing"

	"mailgate/internal/db"
)

var testParams = RecordParams{
	MXHost:     "inbound-smtp.eu-west-1.amazonaws.com",
	SPFInclude: "amazonses.com",
	DKIMSuffix: "dkim.amazonses.com",
}

func TestRequirementsShape(t *testing.T) {
	tokens := [3]string{"tok1", "tok2", "tok3"}
	recs := Requirements("example.com", tokens, testParams)
	if len(recs) != 6 {
		t.Fatalf("want 6 records, got %d", len(recs))
	}

	wantPurposes := []db.RecordPurpose{
		db.PurposeMX, db.PurposeSPF, db.PurposeDKIM1, db.PurposeDKIM2, db.PurposeDKIM3, db.PurposeDMARC,
	}
	for i, p := range wantPurposes {
		if recs[i].Purpose != p {
			t.Fatalf("record %d purpose %s want %s", i, recs[i].Purpose, p)
		}
		if recs[i].Status != db.RecordPending {
			t.Fatalf("record %d status %s want pending", i, recs[i].Status)
		}
	}

	tests := []struct{ name, typ, expected string }{
		{"example.com", "MX", "10 inbound-smtp.eu-west-1.amazonaws.com"},
		{"example.com", "TXT", "v=spf1 include:amazonses.com ~all"},
		{"tok1._domainkey.example.com", "CNAME", "tok1.dkim.amazonses.com"},
		{"tok2._domainkey.example.com", "CNAME", "tok2.dkim.amazonses.com"},
		{"tok3._domainkey.example.com", "CNAME", "tok3.dkim.amazonses.com"},
		{"_dmarc.example.com", "TXT", "v=dmarc1; p=quarantine; rua=mailto:dmarc@example.com"},
	}
	for i, tt := range tests {
		if recs[i].Name != tt.name || recs[i].Type != tt.typ || recs[i].Expected != tt.expected {
			t.Fatalf("record %d = %q %s %q, want %q %s %q",
				i, recs[i].Name, recs[i].Type, recs[i].Expected, tt.name, tt.typ, tt.expected)
		}
	}
}

func TestRequirementsDeterministic(t *testing.T) {
	tokens := [3]string{"aaa", "bbb", "ccc"}
	a := Requirements("mail.example.net", tokens, testParams)
	b := Requirements("mail.example.net", tokens, testParams)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Requirements is not deterministic")
	}
}
