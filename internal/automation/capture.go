// Copyright 2025 Kyungsuk Kim
//
// Response capture: watching the conversation text until the streamed
// reply settles.
package automation

import (
	"context"
	"strings"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
)

// Capturer watches the window's conversation text and extracts the
// assistant's reply once it stops changing. Completion cannot be
// observed directly, so it is inferred: the text must grow past the
// pre-send baseline, then hold identical across two consecutive polls.
type Capturer struct {
	driver Driver
	clock  Clock
	cfg    config.AutomationConfig
}

// NewCapturer builds a Capturer over the given driver.
func NewCapturer(driver Driver, clock Clock, cfg config.AutomationConfig) *Capturer {
	return &Capturer{driver: driver, clock: clock, cfg: cfg}
}

// Baseline snapshots the conversation text before a message is sent.
// Everything appearing past this marker is attributed to the new
// exchange.
func (c *Capturer) Baseline(ctx context.Context, win WindowInfo) (string, error) {
	text, err := c.driver.CaptureText(ctx, win.Handle)
	if err != nil {
		return "", WrapErr(CategoryAutomation, KindInjection, "capture", err)
	}
	return text, nil
}

// Capture polls until the reply settles or timeout elapses. The sent
// message is used to strip its echoed copy out of the captured text. On
// timeout it returns the best partial text seen together with a
// response_timeout error carrying that partial, so callers can surface
// both.
func (c *Capturer) Capture(ctx context.Context, win WindowInfo, baseline, message string, timeout config.Duration) (string, error) {
	// Initial grace: the app needs a beat to begin streaming before the
	// first snapshot is worth taking.
	if err := c.clock.Sleep(ctx, c.cfg.CaptureGrace.Std()); err != nil {
		return "", c.timeoutErr("", err)
	}

	deadline := c.clock.Now().Add(timeout.Std())
	var prev string
	havePrev := false
	partial := ""

	for {
		text, err := c.driver.CaptureText(ctx, win.Handle)
		if err != nil {
			// The transcript region can be briefly unreadable while the
			// app re-renders; keep polling until the deadline.
			havePrev = false
		} else {
			reply := replyAfter(baseline, text)
			if reply != "" {
				partial = reply
			}

			grown := reply != ""
			if grown && havePrev && text == prev {
				return c.clip(stripEcho(reply, message)), nil
			}
			prev, havePrev = text, true
		}

		if !c.clock.Now().Before(deadline) {
			p := c.clip(stripEcho(partial, message))
			return p, c.timeoutErr(p, nil)
		}
		if err := c.clock.Sleep(ctx, c.cfg.PollInterval.Std()); err != nil {
			p := c.clip(stripEcho(partial, message))
			return p, c.timeoutErr(p, err)
		}
	}
}

// stripEcho removes the sent message's echoed copy and any assistant
// label from the front of the captured reply, leaving just the response
// text.
func stripEcho(reply, message string) string {
	if message != "" {
		if i := strings.Index(reply, message); i >= 0 {
			reply = strings.TrimSpace(reply[i+len(message):])
		}
	}
	fl := firstLine(reply)
	if role, rest, ok := splitRolePrefix(strings.TrimSpace(fl)); ok && role == RoleAssistant {
		reply = rest + reply[len(fl):]
	}
	return strings.TrimSpace(reply)
}

func (c *Capturer) timeoutErr(partial string, cause error) error {
	return &Error{
		Category: CategoryTimeout,
		Kind:     KindResponseTimeout,
		Op:       "capture",
		Partial:  partial,
		Detail:   "response did not settle before the timeout",
		Err:      cause,
	}
}

func (c *Capturer) clip(s string) string {
	if c.cfg.MaxResponseLength > 0 && len(s) > c.cfg.MaxResponseLength {
		return s[:c.cfg.MaxResponseLength]
	}
	return s
}

// replyAfter extracts the text that appeared past the baseline snapshot.
// The conversation view is append-only during a reply, so the common
// case is a simple prefix strip; when the view scrolled or re-rendered,
// fall back to anchoring on the baseline's tail.
func replyAfter(baseline, current string) string {
	if baseline == "" {
		return CleanResponse(current)
	}
	if strings.HasPrefix(current, baseline) {
		return CleanResponse(current[len(baseline):])
	}
	anchor := tail(baseline, 200)
	if anchor != "" {
		if i := strings.LastIndex(current, anchor); i >= 0 {
			return CleanResponse(current[i+len(anchor):])
		}
	}
	if current != baseline {
		return CleanResponse(current)
	}
	return ""
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
