// Copyright 2025 Kyungsuk Kim
package automation

import (
	"testing"
	"time"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "strips chrome lines",
			raw:  "Hello!\nRegenerate\nCopy\nHow can I help?",
			want: "Hello!\nHow can I help?",
		},
		{
			name: "collapses blank runs",
			raw:  "first\n\n\n\nsecond",
			want: "first\n\nsecond",
		},
		{
			name: "trims surrounding whitespace",
			raw:  "\n\n  answer  \n\n",
			want: "answer",
		},
		{
			name: "keeps code-looking lines",
			raw:  "def f():\n    return 1",
			want: "def f():\n    return 1",
		},
		{
			name: "drops disclaimer footer",
			raw:  "answer\nChatGPT can make mistakes. Check important info.",
			want: "answer",
		},
		{
			name: "empty",
			raw:  "Send a message\nNew chat",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanResponse(tt.raw); got != tt.want {
				t.Errorf("CleanResponse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTranscriptRolePrefixes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	text := "You: what is two plus two?\nChatGPT: Four.\nYou: thanks\nChatGPT: Any time."
	msgs := ParseTranscript(text, now)

	if len(msgs) != 4 {
		t.Fatalf("ParseTranscript returned %d messages, want 4", len(msgs))
	}
	wantRoles := []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %s, want %s", i, m.Role, wantRoles[i])
		}
		if !m.Timestamp.Equal(now) {
			t.Errorf("message %d timestamp = %v, want capture time", i, m.Timestamp)
		}
	}
	if msgs[0].Content != "what is two plus two?" {
		t.Errorf("message 0 content = %q", msgs[0].Content)
	}
	if msgs[1].Content != "Four." {
		t.Errorf("message 1 content = %q", msgs[1].Content)
	}
}

func TestParseTranscriptMultilineMessage(t *testing.T) {
	text := "User: first line\nsecond line\nAssistant: reply line one\nreply line two"
	msgs := ParseTranscript(text, time.Now())

	if len(msgs) != 2 {
		t.Fatalf("ParseTranscript returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "first line\nsecond line" {
		t.Errorf("user content = %q", msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("second message role = %s, want assistant", msgs[1].Role)
	}
}

func TestParseTranscriptUnlabelledAlternates(t *testing.T) {
	text := "hello\n\nHi! How can I help you today?"
	msgs := ParseTranscript(text, time.Now())

	if len(msgs) != 1 {
		// A blank line alone does not split an unlabelled block.
		t.Fatalf("ParseTranscript returned %d messages, want 1", len(msgs))
	}
}

func TestParseTranscriptQuestionHeuristic(t *testing.T) {
	text := "What time is it?"
	msgs := ParseTranscript(text, time.Now())

	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("question not attributed to the user: %+v", msgs)
	}
}

func TestParseTranscriptEmpty(t *testing.T) {
	if msgs := ParseTranscript("Regenerate\nCopy\n", time.Now()); msgs != nil {
		t.Errorf("ParseTranscript of pure chrome = %+v, want nil", msgs)
	}
}
