// Package verify owns the domain verification core: requirement generation,
// the domain lifecycle state machine and the DNS reconciliation loop.
package verify

import (
	"fmt"

	"mailgate/internal/db"
	"mailgate/internal/dnscheck"
)

// RecordParams are the provider-side constants baked into required records.
type RecordParams struct {
	MXHost     string
	SPFInclude string
	DKIMSuffix string
}

// Requirements computes the exact DNS record set that proves ownership and
// mail-authentication posture for domainName. Pure and deterministic: same
// inputs, same six records in the same order (MX, SPF, DKIM x3, DMARC).
// Expected values are stored pre-normalized so reconciliation compares
// normalized-to-normalized.
func Requirements(domainName string, tokens [3]string, p RecordParams) []db.DNSRecord {
	recs := []db.DNSRecord{
		{
			Type:     "MX",
			Purpose:  db.PurposeMX,
			Name:     domainName,
			Expected: fmt.Sprintf("10 %s", p.MXHost),
		},
		{
			Type:     "TXT",
			Purpose:  db.PurposeSPF,
			Name:     domainName,
			Expected: fmt.Sprintf("v=spf1 include:%s ~all", p.SPFInclude),
		},
	}
	dkim := []db.RecordPurpose{db.PurposeDKIM1, db.PurposeDKIM2, db.PurposeDKIM3}
	for i, tok := range tokens {
		recs = append(recs, db.DNSRecord{
			Type:     "CNAME",
			Purpose:  dkim[i],
			Name:     fmt.Sprintf("%s._domainkey.%s", tok, domainName),
			Expected: fmt.Sprintf("%s.%s", tok, p.DKIMSuffix),
		})
	}
	recs = append(recs, db.DNSRecord{
		Type:     "TXT",
		Purpose:  db.PurposeDMARC,
		Name:     fmt.Sprintf("_dmarc.%s", domainName),
		Expected: fmt.Sprintf("v=DMARC1; p=quarantine; rua=mailto:dmarc@%s", domainName),
	})
	for i := range recs {
		recs[i].Expected = dnscheck.Normalize(recs[i].Expected)
		recs[i].Status = db.RecordPending
	}
	return recs
}
