package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModerate(t *testing.T) {
	m := New()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"clean", "I had a rough day but talking helps", []string{}},
		{"profanity", "this is bullshit", []string{Profanity}},
		{"profanity_case", "What the HELL", []string{Profanity}},
		{"word_boundary", "hello class, assess the passage", []string{}},
		{"email", "write to me at jane.doe@example.com", []string{Email}},
		{"drugs_multiword", "anyone tried magic mushrooms", []string{Drugs}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Moderate(tt.text)
			assert.Equal(t, tt.want, got.Violations)
			assert.Equal(t, len(tt.want) == 0, got.Appropriate)
		})
	}
}

func TestModerateDetectsPersonalNumbers(t *testing.T) {
	m := New()

	assert.Contains(t, m.Moderate("call me at 555-123-4567").Violations, Phone)
	assert.Contains(t, m.Moderate("my card is 4111 1111 1111 1111").Violations, CreditCard)
	assert.Contains(t, m.Moderate("ssn 123-45-6789").Violations, SSN)
}

func TestCensor(t *testing.T) {
	m := New()

	tests := []struct {
		name           string
		text           string
		want           string
		wantViolations []string
	}{
		{"clean", "good morning", "good morning", []string{}},
		{"profanity", "oh shit, again", "oh ****, again", []string{Profanity}},
		{"email", "mail jane@example.com now", "mail ****@****.*** now", []string{Email}},
		{"phone", "call 555-123-4567", "call ****-****-****", []string{Phone}},
		{"drugs", "no more cocaine", "no more ****", []string{Drugs}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, violations := m.Censor(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantViolations, violations)
		})
	}
}

func TestSanitize(t *testing.T) {
	s := NewSanitizer()

	assert.Equal(t, "hello", s.Sanitize("<b>hello</b>"))
	assert.Equal(t, "", s.Sanitize(`<script>alert("x")</script>`))
	assert.Equal(t, "I'm fine & you?", s.Sanitize("I'm fine & you?"))
	assert.Equal(t, "1 < 2", s.Sanitize("1 < 2"))

	for _, in := range []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&amp;lt;img src=x onerror=alert(1)&amp;gt;",
		"&#60;b&#62;hi&#60;/b&#62;",
	} {
		out := s.Sanitize(in)
		assert.NotContains(t, out, "<script", in)
		assert.NotContains(t, out, "<img", in)
		assert.NotContains(t, out, "<b>", in)
	}
	assert.Equal(t, "hi", s.Sanitize("&lt;b&gt;hi&lt;/b&gt;"))
}
