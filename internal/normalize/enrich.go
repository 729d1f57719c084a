package normalize

import (
	"strings"

	"github.com/sells-group/contacts-cli/internal/model"
)

// Hook is a pure transform applied to a normalized record. A hook may
// mutate the record in place or return a replacement.
type Hook func(rec *model.NormalizedRecord) *model.NormalizedRecord

// EnrichmentPipeline is an ordered chain of hooks. It is an explicit value
// handed to the Normalizer rather than process-wide state, so callers (and
// tests) control exactly which transforms run and in what order.
type EnrichmentPipeline struct {
	hooks []Hook
}

// NewEnrichmentPipeline builds a pipeline from hooks in application order.
func NewEnrichmentPipeline(hooks ...Hook) *EnrichmentPipeline {
	return &EnrichmentPipeline{hooks: hooks}
}

// DefaultEnrichmentPipeline returns the pipeline used in production:
// company-suffix canonicalization only.
func DefaultEnrichmentPipeline() *EnrichmentPipeline {
	return NewEnrichmentPipeline(NormalizeCompanySuffix)
}

// Append registers an additional hook after the existing chain.
func (p *EnrichmentPipeline) Append(h Hook) {
	p.hooks = append(p.hooks, h)
}

// Apply threads rec through every hook in registration order.
func (p *EnrichmentPipeline) Apply(rec *model.NormalizedRecord) *model.NormalizedRecord {
	if p == nil {
		return rec
	}
	for _, h := range p.hooks {
		rec = h(rec)
	}
	return rec
}

// suffixVariants maps punctuation/casing variants of common company
// suffixes to one canonical spelling.
var suffixVariants = map[string]string{
	"inc":          "Inc",
	"inc.":         "Inc",
	"incorporated": "Inc",
	"corp":         "Corp",
	"corp.":        "Corp",
	"corporation":  "Corp",
	"llc":          "LLC",
	"l.l.c.":       "LLC",
	"ltd":          "Ltd",
	"ltd.":         "Ltd",
	"limited":      "Ltd",
	"co":           "Co",
	"co.":          "Co",
	"llp":          "LLP",
	"l.l.p.":       "LLP",
	"plc":          "PLC",
	"p.l.c.":       "PLC",
}

// NormalizeCompanySuffix canonicalizes the trailing company suffix of the
// organization field ("acme corp." and "ACME Corporation" both end in
// "Corp"). Non-suffix words are left untouched.
func NormalizeCompanySuffix(rec *model.NormalizedRecord) *model.NormalizedRecord {
	if rec.Organization == "" {
		return rec
	}

	words := strings.Fields(rec.Organization)
	if len(words) < 2 {
		return rec
	}

	last := strings.ToLower(strings.TrimSuffix(words[len(words)-1], ","))
	if canonical, ok := suffixVariants[last]; ok {
		words[len(words)-1] = canonical
		rec.Organization = strings.Join(words, " ")
	}
	return rec
}
