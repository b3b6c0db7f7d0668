// Copyright 2025 Kyungsuk Kim
//
// Window location: find the ChatGPT window by title pattern and bring it
// to the foreground.
package automation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
)

// Locator finds and focuses the target application window.
type Locator struct {
	driver Driver
	clock  Clock
	cfg    config.WindowConfig
}

// NewLocator builds a Locator over the given driver.
func NewLocator(driver Driver, clock Clock, cfg config.WindowConfig) *Locator {
	return &Locator{driver: driver, clock: clock, cfg: cfg}
}

// Locate searches for the target window, polling until the search
// timeout elapses. Patterns are tried in priority order: the first
// pattern with any match wins, and within it a single usable match is
// required. Two or more windows matching the winning pattern is an
// ambiguity error, not a silent pick.
func (l *Locator) Locate(ctx context.Context) (WindowInfo, error) {
	deadline := l.clock.Now().Add(l.cfg.SearchTimeout.Std())
	for {
		win, err := l.scan(ctx)
		if err == nil {
			return win, nil
		}
		if !IsKind(err, KindWindowNotFound) {
			return WindowInfo{}, err
		}
		if !l.clock.Now().Before(deadline) {
			return WindowInfo{}, err
		}
		if serr := l.clock.Sleep(ctx, 250*time.Millisecond); serr != nil {
			return WindowInfo{}, WrapErr(CategoryTimeout, KindWindowNotFound, "locate", serr)
		}
	}
}

func (l *Locator) scan(ctx context.Context) (WindowInfo, error) {
	windows, err := l.driver.ListWindows(ctx)
	if err != nil {
		return WindowInfo{}, WrapErr(CategoryAutomation, KindWindowNotFound, "locate", err)
	}

	for _, pattern := range l.cfg.TitlePatterns {
		var matches []WindowInfo
		for _, w := range windows {
			if matchTitle(w.Title, pattern) {
				matches = append(matches, w)
			}
		}
		if len(matches) == 0 {
			continue
		}

		usable := matches[:0:0]
		for _, w := range matches {
			if w.Width >= l.cfg.MinWidth && w.Height >= l.cfg.MinHeight {
				usable = append(usable, w)
			} else {
				log.Printf("Ignoring undersized window %q (%dx%d)", w.Title, w.Width, w.Height)
			}
		}
		switch len(usable) {
		case 0:
			continue
		case 1:
			return usable[0], nil
		default:
			return WindowInfo{}, Errorf(CategoryAutomation, KindAmbiguousWindow, "locate",
				"%d windows match pattern %q; close duplicates or narrow the title patterns", len(usable), pattern)
		}
	}

	return WindowInfo{}, Errorf(CategoryAutomation, KindWindowNotFound, "locate",
		"no window matched %d title patterns; is the ChatGPT app running?", len(l.cfg.TitlePatterns))
}

// matchTitle does a case-insensitive substring match.
func matchTitle(title, pattern string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(pattern))
}

// FocusWindow brings the window to the foreground, retrying on transient
// activation refusals. Windows throttles SetForegroundWindow for
// background processes, so a short delay between attempts is load
// bearing, not cosmetic.
func (l *Locator) FocusWindow(ctx context.Context, win WindowInfo) error {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.FocusRetries; attempt++ {
		if attempt > 0 {
			if err := l.clock.Sleep(ctx, l.cfg.FocusRetryDelay.Std()); err != nil {
				return WrapErr(CategoryTimeout, KindFocusFailed, "focus", err)
			}
		}
		if !l.driver.Exists(win.Handle) {
			return Errorf(CategoryAutomation, KindWindowNotFound, "focus",
				"window %q disappeared before it could be focused", win.Title)
		}
		if err := l.driver.Focus(ctx, win.Handle); err != nil {
			lastErr = err
			continue
		}
		fg, err := l.driver.IsForeground(win.Handle)
		if err != nil {
			lastErr = err
			continue
		}
		if fg {
			return nil
		}
		lastErr = nil
	}
	return &Error{
		Category: CategoryAutomation,
		Kind:     KindFocusFailed,
		Op:       "focus",
		Detail:   fmt.Sprintf("window refused foreground activation after %d attempts", l.cfg.FocusRetries+1),
		Err:      lastErr,
	}
}

// EnsureForeground verifies the window still holds focus, used between
// injection steps to detect the user clicking away mid-operation.
func (l *Locator) EnsureForeground(win WindowInfo) error {
	if !l.driver.Exists(win.Handle) {
		return Errorf(CategoryAutomation, KindWindowNotFound, "focus_check",
			"window %q was closed mid-operation", win.Title)
	}
	fg, err := l.driver.IsForeground(win.Handle)
	if err != nil {
		return WrapErr(CategoryAutomation, KindFocusLost, "focus_check", err)
	}
	if !fg {
		return Errorf(CategoryAutomation, KindFocusLost, "focus_check",
			"window %q lost foreground focus", win.Title)
	}
	return nil
}
