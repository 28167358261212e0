// Package moderation screens anonymous chat content for abuse and personal
// information before it is stored or broadcast.
package moderation

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Violation kinds.
const (
	Profanity  = "profanity"
	Email      = "email"
	Phone      = "phone"
	SSN        = "ssn"
	CreditCard = "credit_card"
	Drugs      = "drugs"
)

var profanityWords = []string{
	"damn", "hell", "ass", "arse", "arsehole", "asshole", "bastard", "bitch",
	"bollocks", "bullshit", "crap", "dick", "dickhead", "fuck", "fucker",
	"fucking", "goddamn", "idiot", "jackass", "jerk", "moron", "motherfucker",
	"piss", "prick", "shit", "shite", "slut", "twat", "wanker", "whore",
}

var drugNames = []string{
	"cocaine", "heroin", "meth", "methamphetamine", "crack", "opium", "lsd",
	"ecstasy", "mdma", "ketamine", "pcp", "marijuana", "cannabis", "weed",
	"hashish", "shrooms", "magic mushrooms", "peyote", "mescaline", "dmt",
	"ayahuasca", "salvia", "krokodil", "bath salts", "spice", "k2",
}

type rule struct {
	kind     string
	patterns []*regexp.Regexp
	mask     string
}

// Moderator detects and censors policy violations. The zero value is not
// usable; call New.
type Moderator struct {
	rules []rule
}

// Result is the outcome of Moderate.
type Result struct {
	Appropriate bool     `json:"is_appropriate"`
	Violations  []string `json:"violations"`
}

func wordList(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

func New() *Moderator {
	return &Moderator{
		// Order matters for Censor: earlier masks must not trip later rules.
		rules: []rule{
			{kind: Profanity, mask: "****", patterns: []*regexp.Regexp{wordList(profanityWords)}},
			{kind: Email, mask: "****@****.***", patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`),
			}},
			{kind: Phone, mask: "****-****-****", patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
				regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.]?\d{4}\b`),
				regexp.MustCompile(`\b\d{3}\s+\d{3}\s+\d{4}\b`),
				regexp.MustCompile(`\+\d{1,3}[-.]?\d{3,4}[-.]?\d{3,4}[-.]?\d{3,4}`),
			}},
			{kind: SSN, mask: "***-**-****", patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`),
			}},
			{kind: CreditCard, mask: "****-****-****-****", patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
			}},
			{kind: Drugs, mask: "****", patterns: []*regexp.Regexp{wordList(drugNames)}},
		},
	}
}

// Moderate reports every violation kind found in text.
func (m *Moderator) Moderate(text string) Result {
	violations := []string{}
	for _, r := range m.rules {
		for _, p := range r.patterns {
			if p.MatchString(text) {
				violations = append(violations, r.kind)
				break
			}
		}
	}
	return Result{Appropriate: len(violations) == 0, Violations: violations}
}

// Censor masks every violation in text and returns the masked text along
// with the kinds that were masked.
func (m *Moderator) Censor(text string) (string, []string) {
	violations := []string{}
	for _, r := range m.rules {
		hit := false
		for _, p := range r.patterns {
			if p.MatchString(text) {
				text = p.ReplaceAllLiteralString(text, r.mask)
				hit = true
			}
		}
		if hit {
			violations = append(violations, r.kind)
		}
	}
	return text, violations
}

// Sanitizer strips markup from user input.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses bounds how many layers of entity encoding are peeled.
const maxSanitizePasses = 4

// Sanitize removes every HTML element from s, including elements hidden
// behind entity encoding. Clients receive JSON and render text, so the
// result is returned unescaped. Input that is still changing after
// maxSanitizePasses is returned in its escaped form.
func (s *Sanitizer) Sanitize(in string) string {
	out := in
	for range maxSanitizePasses {
		next := html.UnescapeString(s.policy.Sanitize(html.UnescapeString(out)))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	return strings.TrimSpace(s.policy.Sanitize(html.UnescapeString(out)))
}
