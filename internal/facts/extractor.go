package facts

import (
	"regexp"
	"strings"
)

// Well-known fact keys.
const (
	KeyUserName    = "user_name"
	KeyPreferences = "preferences"
	KeyProfession  = "profession"
)

// namePatterns are tried top to bottom; the first match wins. Matching is
// case-insensitive and unanchored, so introductions mid-sentence still count.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is (\w+)`),
	regexp.MustCompile(`(?i)\bi'm (\w+)`),
	regexp.MustCompile(`(?i)\bi am (\w+)`),
	regexp.MustCompile(`(?i)\bcall me (\w+)`),
	regexp.MustCompile(`(?i)\bname:\s*(\w+)`),
}

var preferenceIndicators = []string{
	"i prefer",
	"i like",
	"i don't like",
	"i hate",
	"i love",
}

// Extract scans a user turn for durable facts. It never fails; a text with
// no recognizable pattern yields an empty map. Rules are independent, so a
// single turn can produce several keys at once.
func Extract(text string) map[string]string {
	out := make(map[string]string)

	for _, p := range namePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			out[KeyUserName] = titleCase(m[1])
			break
		}
	}

	if sentence, ok := firstPreferenceSentence(text); ok {
		out[KeyPreferences] = sentence
	}

	// Coarse on purpose: the whole turn is kept until a finer rule exists.
	lower := strings.ToLower(text)
	if strings.Contains(lower, "work") || strings.Contains(lower, "profession") {
		out[KeyProfession] = text
	}

	return out
}

func firstPreferenceSentence(text string) (string, bool) {
	if !containsIndicator(text) {
		return "", false
	}
	for _, sentence := range strings.Split(text, ".") {
		if containsIndicator(sentence) {
			return strings.TrimSpace(sentence), true
		}
	}
	return "", false
}

func containsIndicator(s string) bool {
	lower := strings.ToLower(s)
	for _, ind := range preferenceIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}
