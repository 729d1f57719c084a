// Package normalize converts raw provider payloads into canonical contact
// records and runs them through the enrichment pipeline.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/contacts-cli/internal/email"
	"github.com/sells-group/contacts-cli/internal/model"
)

// recordIDLen is the hex width of RecordID. 16 chars (64 bits) trades
// global-uniqueness margin for compactness; widen for very large corpora.
const recordIDLen = 16

// accessorRules lists, per logical field, the payload keys checked in
// order. The first key with a non-empty string value wins.
var accessorRules = map[string][]string{
	"name":         {"name", "full_name", "fullName", "contact_name", "display_name", "displayName", "person"},
	"organization": {"organization", "org", "company", "company_name", "companyName", "employer", "account"},
	"role":         {"role", "title", "job_title", "jobTitle", "position"},
	"phone":        {"phone", "phone_number", "phoneNumber", "telephone", "tel", "mobile"},
	"email":        {"email", "email_address", "emailAddress", "mail", "primary_email"},
}

// Normalizer converts raw payloads into canonical records. The zero value
// is not usable; construct with New.
type Normalizer struct {
	pipeline *EnrichmentPipeline
	now      func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the timestamp source (test hook).
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer that applies the given enrichment pipeline to
// every record it produces.
func New(pipeline *EnrichmentPipeline, opts ...Option) *Normalizer {
	n := &Normalizer{
		pipeline: pipeline,
		now:      time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize extracts the canonical fields from raw, classifies the email,
// computes the deterministic RecordID, and applies the enrichment chain.
// It is pure and never fails: absent input fields simply yield empty
// output fields.
func (n *Normalizer) Normalize(source string, raw model.RawPayload) *model.NormalizedRecord {
	rec := &model.NormalizedRecord{
		Source:       source,
		NormalizedAt: n.now().UTC(),
		Name:         extractField(raw, "name"),
		Organization: extractField(raw, "organization"),
		Role:         extractField(raw, "role"),
		Phone:        extractField(raw, "phone"),
		Raw:          raw,
	}

	addr := strings.ToLower(strings.TrimSpace(extractField(raw, "email")))
	if addr != "" {
		res := email.Validate(addr)
		// Invalid addresses are dropped unless role-based; bot-like
		// addresses are dropped unconditionally.
		if res.Valid || (res.RoleBased && !res.BotLike) {
			rec.Email = addr
		}
	}

	rec.RecordID = RecordID(source, rec.Name, rec.Email)

	return n.pipeline.Apply(rec)
}

// RecordID returns the deterministic merge key for (source, name, email):
// the first 16 hex chars of a SHA-256 over "source|name|email". Identical
// triples always yield identical ids, so re-ingestion upserts rather than
// duplicates.
func RecordID(source, name, email string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s", source, name, email))
	return hex.EncodeToString(sum[:])[:recordIDLen]
}

// extractField applies the accessor rules for one logical field: the first
// payload key holding a non-empty string (after slug normalization) wins.
func extractField(raw model.RawPayload, field string) string {
	for _, key := range accessorRules[field] {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if slug := Slug(s); slug != "" {
			return slug
		}
	}
	return ""
}

// Slug trims the string and collapses internal whitespace runs to a single
// space. An all-whitespace input becomes "".
func Slug(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
