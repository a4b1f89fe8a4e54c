package orchestrator

import (
	"strings"
	"testing"

	"github.com/mfiorillo/choir/internal/memory"
)

func turn(role, content string) memory.Turn {
	return memory.Turn{Role: role, Content: content}
}

func TestAssembleContextPreambleOrder(t *testing.T) {
	pctx := assembleContext(map[string]string{
		"preferences": "I like tea",
		"user_name":   "Alice",
		"profession":  "I work in a lab",
	}, nil, "hello")

	want := "Remember the user's name is Alice. Remember these user preferences: I like tea."
	if pctx.MemoryPreamble != want {
		t.Fatalf("MemoryPreamble = %q, want %q", pctx.MemoryPreamble, want)
	}
	if strings.Contains(pctx.MemoryPreamble, "lab") {
		t.Fatalf("profession should not feed the preamble: %q", pctx.MemoryPreamble)
	}
}

func TestAssembleContextHistoryBlockThreshold(t *testing.T) {
	if pctx := assembleContext(nil, nil, "hi"); pctx.HistoryBlock != "" {
		t.Fatalf("HistoryBlock with no prior turns = %q, want empty", pctx.HistoryBlock)
	}

	one := []memory.Turn{turn(memory.RoleUser, "hi")}
	if pctx := assembleContext(nil, one, "hi"); pctx.HistoryBlock != "" {
		t.Fatalf("HistoryBlock with one prior turn = %q, want empty", pctx.HistoryBlock)
	}

	three := []memory.Turn{
		turn(memory.RoleUser, "hi"),
		turn(memory.RoleAssistant, "hello"),
		turn(memory.RoleUser, "how are you?"),
	}
	pctx := assembleContext(nil, three, "next")
	want := "user: hi\nassistant: hello\nuser: how are you?"
	if pctx.HistoryBlock != want {
		t.Fatalf("HistoryBlock = %q, want %q", pctx.HistoryBlock, want)
	}
}

func TestAssembleContextMessagesExcludePrompt(t *testing.T) {
	prior := []memory.Turn{
		turn(memory.RoleUser, "hi"),
		turn(memory.RoleAssistant, "hello"),
	}
	pctx := assembleContext(nil, prior, "the new prompt")

	if len(pctx.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2 prior turns only", len(pctx.Messages))
	}
	for _, m := range pctx.Messages {
		if m.Content == "the new prompt" {
			t.Fatalf("new prompt leaked into prior messages: %+v", pctx.Messages)
		}
	}
	if pctx.Prompt != "the new prompt" {
		t.Fatalf("Prompt = %q, want the new prompt", pctx.Prompt)
	}
}
