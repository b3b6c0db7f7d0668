// Copyright 2025 Kyungsuk Kim
//
// Scripted test doubles for the Driver and Clock seams.
package automation

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errTransientCapture = errors.New("text region not ready")

// fakeClock advances instantly on Sleep so polling loops run to their
// deadlines without real waiting.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// fakeDriver plays back scripted window listings, capture snapshots, and
// input field reads, while recording every gesture it receives.
type fakeDriver struct {
	mu sync.Mutex

	// scripts; the last element of each sequence repeats once exhausted
	listSeq    [][]WindowInfo
	captureSeq []string
	inputSeq   []string
	captureFn  func(call int) string // overrides captureSeq when set

	focusErr    error
	focusDenied int // first N Focus calls leave the window unfocused
	listErr     error
	captureErr  error
	captureFail int // first N CaptureText calls fail
	inputErr    error
	gone        bool // Exists reports false

	clip string

	// recordings
	listCalls    int
	focusCalls   int
	captureCalls int
	typed        []string
	shortcuts    []Shortcut
	clipWrites   []string

	foreground Handle
}

func newFakeDriver(wins ...WindowInfo) *fakeDriver {
	return &fakeDriver{listSeq: [][]WindowInfo{wins}}
}

func (d *fakeDriver) ListWindows(ctx context.Context) ([]WindowInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	if len(d.listSeq) == 0 {
		return nil, nil
	}
	wins := d.listSeq[0]
	if len(d.listSeq) > 1 {
		d.listSeq = d.listSeq[1:]
	}
	return wins, nil
}

func (d *fakeDriver) Focus(ctx context.Context, h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.focusCalls++
	if d.focusErr != nil {
		return d.focusErr
	}
	if d.focusDenied > 0 {
		d.focusDenied--
		return nil
	}
	d.foreground = h
	return nil
}

func (d *fakeDriver) IsForeground(h Handle) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground == h, nil
}

func (d *fakeDriver) Exists(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.gone
}

func (d *fakeDriver) TypeText(ctx context.Context, text string, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDriver) SendShortcut(ctx context.Context, s Shortcut) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shortcuts = append(d.shortcuts, s)
	return nil
}

func (d *fakeDriver) ReadClipboard() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clip, nil
}

func (d *fakeDriver) WriteClipboard(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clip = text
	d.clipWrites = append(d.clipWrites, text)
	return nil
}

func (d *fakeDriver) CaptureText(ctx context.Context, h Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	call := d.captureCalls
	d.captureCalls++
	if d.captureErr != nil {
		return "", d.captureErr
	}
	if d.captureFail > 0 {
		d.captureFail--
		return "", errTransientCapture
	}
	if d.captureFn != nil {
		return d.captureFn(call), nil
	}
	if len(d.captureSeq) == 0 {
		return "", nil
	}
	text := d.captureSeq[0]
	if len(d.captureSeq) > 1 {
		d.captureSeq = d.captureSeq[1:]
	}
	return text, nil
}

func (d *fakeDriver) InputText(ctx context.Context, h Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inputErr != nil {
		return "", d.inputErr
	}
	if len(d.inputSeq) == 0 {
		return "", nil
	}
	text := d.inputSeq[0]
	if len(d.inputSeq) > 1 {
		d.inputSeq = d.inputSeq[1:]
	}
	return text, nil
}

func (d *fakeDriver) sentShortcuts() []Shortcut {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Shortcut, len(d.shortcuts))
	copy(out, d.shortcuts)
	return out
}

func chatWindow() WindowInfo {
	return WindowInfo{Handle: 42, Title: "ChatGPT", Width: 1200, Height: 800}
}
