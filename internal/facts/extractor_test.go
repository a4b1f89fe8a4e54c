package facts

import "testing"

func TestExtractUserName(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"my name is", "Hello there, my name is alice and I enjoy hiking", "Alice"},
		{"contraction", "Hi! I'm bob.", "Bob"},
		{"call me", "You can call me CHARLIE if you want", "Charlie"},
		{"labeled", "name: dave", "Dave"},
		{"case insensitive", "MY NAME IS eve", "Eve"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text)
			if got[KeyUserName] != tc.want {
				t.Fatalf("Extract(%q)[user_name] = %q, want %q", tc.text, got[KeyUserName], tc.want)
			}
		})
	}
}

func TestExtractUserNamePriorityOrder(t *testing.T) {
	// "my name is" outranks "call me" even when both appear.
	got := Extract("call me Ace, but my name is robert")
	if got[KeyUserName] != "Robert" {
		t.Fatalf("user_name = %q, want %q", got[KeyUserName], "Robert")
	}
}

func TestExtractNoNameInsideWords(t *testing.T) {
	got := Extract("give him everything he asked for")
	if v, ok := got[KeyUserName]; ok {
		t.Fatalf("user_name = %q, want no match", v)
	}
}

func TestExtractPreferencesFirstSentence(t *testing.T) {
	text := "Let me tell you something. I like green tea in the morning. I hate loud alarms."
	got := Extract(text)
	want := "I like green tea in the morning"
	if got[KeyPreferences] != want {
		t.Fatalf("preferences = %q, want %q", got[KeyPreferences], want)
	}
}

func TestExtractNoPreferenceIndicator(t *testing.T) {
	got := Extract("The weather looks fine today.")
	if v, ok := got[KeyPreferences]; ok {
		t.Fatalf("preferences = %q, want no key", v)
	}
}

func TestExtractProfessionKeepsWholeText(t *testing.T) {
	text := "I work as a marine biologist near the coast"
	got := Extract(text)
	if got[KeyProfession] != text {
		t.Fatalf("profession = %q, want the entire input", got[KeyProfession])
	}
}

func TestExtractIndependentRules(t *testing.T) {
	text := "my name is Ana. I love puzzles. I work in logistics"
	got := Extract(text)
	if got[KeyUserName] != "Ana" {
		t.Fatalf("user_name = %q, want %q", got[KeyUserName], "Ana")
	}
	if got[KeyPreferences] != "I love puzzles" {
		t.Fatalf("preferences = %q, want %q", got[KeyPreferences], "I love puzzles")
	}
	if got[KeyProfession] != text {
		t.Fatalf("profession = %q, want whole text", got[KeyProfession])
	}
}

func TestExtractEmptyText(t *testing.T) {
	if got := Extract(""); len(got) != 0 {
		t.Fatalf("Extract(\"\") = %v, want empty map", got)
	}
}
