// Copyright 2025 Kyungsuk Kim
//
// Conversation history retrieval.
package automation

import "context"

// History reads the visible conversation from the window and parses it
// into messages.
type History struct {
	driver Driver
	clock  Clock
}

// NewHistory builds a History reader over the given driver.
func NewHistory(driver Driver, clock Clock) *History {
	return &History{driver: driver, clock: clock}
}

// Read captures the window's conversation text and returns up to limit
// of the most recent messages, ordered oldest first. The capture is
// read-only apart from clipboard traffic, which the driver restores.
func (h *History) Read(ctx context.Context, win WindowInfo, limit int) ([]Message, error) {
	raw, err := h.driver.CaptureText(ctx, win.Handle)
	if err != nil {
		return nil, WrapErr(CategoryAutomation, KindInjection, "history", err)
	}
	msgs := ParseTranscript(raw, h.clock.Now())
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
