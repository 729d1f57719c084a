// Package dedupe derives stable merge keys for canonical contact records
// and provides fuzzy-equivalence signals for human review.
package dedupe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/sells-group/contacts-cli/internal/model"
)

// DefaultThreshold is the similarity ratio above which two normalized
// strings are considered a fuzzy match.
const DefaultThreshold = 0.88

// Key returns the merge key for a record, first match wins:
//  1. lowercase/trimmed email
//  2. normalized name + normalized organization
//  3. normalized name
//  4. source + record id (never-empty fallback for unidentifiable records)
//
// Automatic idempotent merge relies solely on this key; fuzzy matching is
// a review signal only.
func Key(rec *model.NormalizedRecord) string {
	if email := strings.ToLower(strings.TrimSpace(rec.Email)); email != "" {
		return "email:" + email
	}

	name := matchNormalize(rec.Name)
	org := matchNormalize(rec.Organization)

	switch {
	case name != "" && org != "":
		return fmt.Sprintf("name_org:%s|%s", name, org)
	case name != "":
		return "name:" + name
	default:
		return fmt.Sprintf("source:%s|id:%s", rec.Source, rec.RecordID)
	}
}

// FuzzyMatch reports whether a and b are similar enough (edit-distance
// ratio on match-normalized strings ≥ threshold) to surface as duplicate
// candidates. Empty input never matches.
func FuzzyMatch(a, b string, threshold float64) bool {
	na, nb := matchNormalize(a), matchNormalize(b)
	if na == "" || nb == "" {
		return false
	}
	return levenshtein.Similarity(na, nb, nil) >= threshold
}

// NameOrgMatch requires name similarity ≥ threshold; when both sides carry
// an organization, organization similarity ≥ threshold is additionally
// required. A missing organization on either side falls back to the name
// check alone.
func NameOrgMatch(nameA, orgA, nameB, orgB string, threshold float64) bool {
	if !FuzzyMatch(nameA, nameB, threshold) {
		return false
	}
	if matchNormalize(orgA) != "" && matchNormalize(orgB) != "" {
		return FuzzyMatch(orgA, orgB, threshold)
	}
	return true
}

// Candidate pairs two records that fuzzy-match but carry different merge
// keys, so they were not merged automatically and need human review.
type Candidate struct {
	A          *model.NormalizedRecord
	B          *model.NormalizedRecord
	Similarity float64
}

// FindCandidates scans records pairwise for review candidates at the given
// similarity threshold (<= 0 falls back to DefaultThreshold). Pairs sharing
// a merge key are skipped; those merge automatically on write.
func FindCandidates(records []*model.NormalizedRecord, threshold float64) []Candidate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var out []Candidate
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i], records[j]
			if Key(a) == Key(b) {
				continue
			}
			if !NameOrgMatch(a.Name, a.Organization, b.Name, b.Organization, threshold) {
				continue
			}
			out = append(out, Candidate{
				A:          a,
				B:          b,
				Similarity: levenshtein.Similarity(matchNormalize(a.Name), matchNormalize(b.Name), nil),
			})
		}
	}
	return out
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)
var spaceRe = regexp.MustCompile(`\s+`)

// matchNormalize lowercases, strips non-alphanumerics, and collapses
// whitespace for comparison purposes.
func matchNormalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
