// Package signal normalizes heterogeneous raw signals (job postings, social
// posts, referrals) into the uniform candidate shape the pipeline scores and
// merges. Normalization also derives the dedup key that makes coordinator
// cycles idempotent.
package signal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Known signal sources.
const (
	SourceJobBoard = "job_board"
	SourceTwitter  = "twitter"
	SourceReddit   = "reddit"
	SourceWebsite  = "website"
	SourceReferral = "referral"
)

var knownSources = map[string]bool{
	SourceJobBoard: true,
	SourceTwitter:  true,
	SourceReddit:   true,
	SourceWebsite:  true,
	SourceReferral: true,
}

// Raw is a signal record as delivered by a scraper or polling agent.
type Raw struct {
	Source      string `json:"source"`
	ExternalID  string `json:"external_id,omitempty"`
	Text        string `json:"text"`
	Company     string `json:"company,omitempty"`
	Contact     string `json:"contact,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	ObservedAt  string `json:"observed_at,omitempty" format:"date-time"`
}

// Candidate is the normalized shape handed to scoring and the coordinator.
type Candidate struct {
	DedupKey    string
	Source      string
	Text        string
	Company     string
	Contact     string
	CompanySize string
	Industry    string
	ObservedAt  string
}

// ValidationError marks a malformed raw signal. The coordinator logs and
// skips these, it never aborts a cycle for them.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s %s", e.Field, e.Msg)
}

// Normalize converts a raw signal into a candidate. The candidate must carry
// at least one non-empty signal field.
func Normalize(r Raw) (Candidate, error) {
	source := strings.ToLower(strings.TrimSpace(r.Source))
	if !knownSources[source] {
		return Candidate{}, ValidationError{Field: "source", Msg: fmt.Sprintf("unknown value %q", r.Source)}
	}
	text := strings.TrimSpace(r.Text)
	company := strings.TrimSpace(r.Company)
	if text == "" && company == "" && strings.TrimSpace(r.Contact) == "" {
		return Candidate{}, ValidationError{Field: "text", Msg: "at least one signal field required"}
	}
	c := Candidate{
		Source:      source,
		Text:        text,
		Company:     company,
		Contact:     strings.TrimSpace(r.Contact),
		CompanySize: strings.TrimSpace(r.CompanySize),
		Industry:    strings.ToLower(strings.TrimSpace(r.Industry)),
		ObservedAt:  strings.TrimSpace(r.ObservedAt),
	}
	c.DedupKey = dedupKey(source, strings.TrimSpace(r.ExternalID), c.Company, c.Contact, c.Text)
	return c, nil
}

// dedupKey prefers the stable external identifier; without one it falls back
// to a fuzzy company+contact slug so re-scrapes of the same prospect collapse
// onto one lead.
func dedupKey(source, externalID, company, contact, text string) string {
	if externalID != "" {
		return source + ":" + externalID
	}
	slug := slugify(company) + "/" + slugify(contact)
	if slug == "/" {
		// Anonymous free-text signal: hash the text itself.
		return source + ":" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(text)).String()
	}
	return source + ":" + slug
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
