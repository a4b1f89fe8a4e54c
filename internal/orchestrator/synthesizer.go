package orchestrator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mfiorillo/choir/internal/facts"
)

// providerTraits gives each known provider a flavor line for simulated
// answers. Unknown providers get the generic closing.
var providerTraits = map[string]string{
	"zai":     "is known for fast, pragmatic answers with a technical bent",
	"gemini":  "tends to give structured, example-heavy explanations",
	"mistral": "favors concise, direct responses",
}

var greetingPhrases = []string{"good morning", "good afternoon", "good evening"}

// Synthesize produces the deterministic demo answer for one provider. It is
// a pure function of its inputs, so repeated simulations are reproducible.
func Synthesize(providerID, providerName string, pctx ProviderContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "This is a simulated response from %s to: %q.", providerName, pctx.Prompt)

	if name, ok := preambleName(pctx.MemoryPreamble); ok && looksLikeGreeting(pctx.Prompt) {
		fmt.Fprintf(&b, " Nice to hear from you again, %s!", name)
	}

	if trait, ok := providerTraits[providerID]; ok {
		fmt.Fprintf(&b, " %s %s.", providerName, trait)
	} else {
		fmt.Fprintf(&b, " %s has its own style and focus, which is what makes side-by-side comparison useful.", providerName)
	}

	if pctx.HistoryBlock != "" && !looksLikeIntroduction(pctx.Prompt) {
		b.WriteString(" Building on our earlier exchange, I kept the previous context in mind.")
	}

	return b.String()
}

// preambleName recovers the remembered name from the memory preamble rather
// than re-running extraction, so the demo path sees exactly what a live
// provider would have been told.
func preambleName(preamble string) (string, bool) {
	const marker = "Remember the user's name is "
	idx := strings.Index(preamble, marker)
	if idx < 0 {
		return "", false
	}
	rest := preamble[idx+len(marker):]
	if end := strings.IndexByte(rest, '.'); end > 0 {
		return rest[:end], true
	}
	return "", false
}

func looksLikeGreeting(prompt string) bool {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	for _, phrase := range greetingPhrases {
		if strings.HasPrefix(lower, phrase) {
			return true
		}
	}
	first := lower
	if i := strings.IndexFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }); i >= 0 {
		first = lower[:i]
	}
	switch first {
	case "hello", "hi", "hey", "greetings":
		return true
	default:
		return false
	}
}

func looksLikeIntroduction(prompt string) bool {
	_, ok := facts.Extract(prompt)[facts.KeyUserName]
	return ok
}
