package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mfiorillo/choir/internal/facts"
	"github.com/mfiorillo/choir/internal/memory"
	"github.com/mfiorillo/choir/internal/providers"
)

// ProviderContext is everything one provider call needs beyond the prompt:
// the structured prior messages for live calls, and the flattened memory
// preamble plus history block for the simulated path.
type ProviderContext struct {
	MemoryPreamble string
	HistoryBlock   string
	Messages       []providers.Message
	Prompt         string
}

// preambleKeys fixes which facts feed the memory preamble and in what order.
// Other keys (profession and future additions) are stored but not recited.
var preambleKeys = []string{facts.KeyUserName, facts.KeyPreferences}

// assembleContext builds the per-provider call context from that provider's
// remembered facts and its own prior turn stream. The current prompt turn is
// not part of prior.
func assembleContext(factsByKey map[string]string, prior []memory.Turn, prompt string) ProviderContext {
	pctx := ProviderContext{Prompt: prompt}

	var preamble strings.Builder
	for _, key := range preambleKeys {
		value, ok := factsByKey[key]
		if !ok || value == "" {
			continue
		}
		switch key {
		case facts.KeyUserName:
			fmt.Fprintf(&preamble, "Remember the user's name is %s. ", value)
		case facts.KeyPreferences:
			fmt.Fprintf(&preamble, "Remember these user preferences: %s. ", value)
		}
	}
	pctx.MemoryPreamble = strings.TrimSpace(preamble.String())

	// A single prior turn is not a conversation yet; skip the block.
	if len(prior) >= 2 {
		lines := make([]string, 0, len(prior))
		for _, t := range prior {
			lines = append(lines, t.Role+": "+t.Content)
		}
		pctx.HistoryBlock = strings.Join(lines, "\n")
	}

	pctx.Messages = make([]providers.Message, 0, len(prior))
	for _, t := range prior {
		pctx.Messages = append(pctx.Messages, providers.Message{Role: t.Role, Content: t.Content})
	}

	return pctx
}
