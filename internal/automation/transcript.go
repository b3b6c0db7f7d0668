// Copyright 2025 Kyungsuk Kim
//
// Transcript parsing: turning raw captured window text into cleaned
// conversation messages.
package automation

import (
	"strings"
	"time"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the parsed conversation transcript. Timestamps
// record when the text was captured, not when it was originally said;
// the window exposes no per-message times.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// uiChrome lists interface strings that leak into a select-all capture
// and carry no conversational content.
var uiChrome = []string{
	"Regenerate response",
	"Regenerate",
	"Copy code",
	"Copy",
	"Share",
	"Stop generating",
	"Continue generating",
	"New chat",
	"Send a message",
	"Message ChatGPT",
	"ChatGPT can make mistakes. Check important info.",
	"ChatGPT can make mistakes",
	"Free Research Preview",
	"Upgrade to Plus",
	"Model:",
	"Today",
	"Yesterday",
}

// rolePrefixes maps transcript line prefixes to message roles. The
// desktop app labels turns inconsistently across versions, so several
// spellings are accepted.
var rolePrefixes = []struct {
	prefix string
	role   Role
}{
	{"You:", RoleUser},
	{"User:", RoleUser},
	{"ChatGPT:", RoleAssistant},
	{"Assistant:", RoleAssistant},
	{"GPT:", RoleAssistant},
}

// CleanResponse strips interface chrome and collapses the whitespace
// noise a select-all capture picks up, leaving only conversational text.
func CleanResponse(raw string) string {
	lines := strings.Split(raw, "\n")
	out := lines[:0]
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isChrome(trimmed) {
			continue
		}
		if trimmed == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func isChrome(line string) bool {
	for _, c := range uiChrome {
		if line == c {
			return true
		}
	}
	return false
}

// ParseTranscript splits cleaned conversation text into role-attributed
// messages. Explicit role prefixes win; unlabelled blocks are attributed
// by alternation and a question heuristic, matching how the desktop app
// renders turns without reliable labels.
func ParseTranscript(text string, capturedAt time.Time) []Message {
	text = CleanResponse(text)
	if text == "" {
		return nil
	}

	var msgs []Message
	var cur *Message
	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Content) != "" {
			cur.Content = strings.TrimSpace(cur.Content)
			msgs = append(msgs, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if role, rest, ok := splitRolePrefix(trimmed); ok {
			flush()
			cur = &Message{Role: role, Content: rest, Timestamp: capturedAt}
			continue
		}
		if trimmed == "" {
			// Paragraph break inside a message stays part of it; a break
			// with no open message is ignored.
			if cur != nil {
				cur.Content += "\n"
			}
			continue
		}
		if cur == nil {
			cur = &Message{Role: guessRole(trimmed, msgs), Content: trimmed, Timestamp: capturedAt}
			continue
		}
		if cur.Content != "" && !strings.HasSuffix(cur.Content, "\n") {
			cur.Content += "\n"
		}
		cur.Content += trimmed
	}
	flush()
	return msgs
}

func splitRolePrefix(line string) (Role, string, bool) {
	for _, rp := range rolePrefixes {
		if strings.HasPrefix(line, rp.prefix) {
			return rp.role, strings.TrimSpace(line[len(rp.prefix):]), true
		}
	}
	return "", "", false
}

var questionWords = []string{"what", "how", "why", "when", "where", "who", "which", "can", "could", "would", "should", "is", "are", "do", "does"}

// guessRole attributes an unlabelled block. Short question-shaped lines
// read as the user; otherwise turns alternate starting from the user.
func guessRole(line string, prior []Message) Role {
	lower := strings.ToLower(line)
	if strings.HasSuffix(strings.TrimSpace(lower), "?") && len(line) < 200 {
		for _, w := range questionWords {
			if strings.HasPrefix(lower, w+" ") {
				return RoleUser
			}
		}
	}
	if len(prior) == 0 {
		return RoleUser
	}
	if prior[len(prior)-1].Role == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}
