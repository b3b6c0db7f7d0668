// Copyright 2025 Kyungsuk Kim
//
// Text injection: placing a prompt into the ChatGPT input field and
// submitting it.
package automation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
)

// Injector places message text into the focused input field and submits
// it. Short messages are typed per keystroke; long ones go through the
// clipboard, which is faster and immune to per-character timing issues.
type Injector struct {
	driver  Driver
	clock   Clock
	locator *Locator
	cfg     config.AutomationConfig
}

// NewInjector builds an Injector sharing the locator's driver and clock.
func NewInjector(driver Driver, clock Clock, locator *Locator, cfg config.AutomationConfig) *Injector {
	return &Injector{driver: driver, clock: clock, locator: locator, cfg: cfg}
}

// Inject clears the input field and places message into it. The window
// must already hold the foreground; focus is re-verified before and
// after because injected input lands wherever focus actually is.
func (inj *Injector) Inject(ctx context.Context, win WindowInfo, message string) error {
	if err := inj.locator.EnsureForeground(win); err != nil {
		return err
	}

	// Select-all then overwrite clears any stale draft.
	if err := inj.driver.SendShortcut(ctx, Shortcut{Ctrl: true, Key: 'a'}); err != nil {
		return WrapErr(CategoryAutomation, KindInjection, "inject", err)
	}

	// The threshold counts characters, not bytes, so multibyte text does
	// not switch strategy early.
	var err error
	if utf8.RuneCountInString(message) >= inj.cfg.ClipboardThreshold {
		err = inj.paste(ctx, message)
	} else {
		err = inj.typeOut(ctx, message)
	}
	if err != nil {
		return err
	}

	return inj.locator.EnsureForeground(win)
}

func (inj *Injector) typeOut(ctx context.Context, message string) error {
	if err := inj.driver.TypeText(ctx, message, inj.cfg.TypingDelay.Std()); err != nil {
		return WrapErr(CategoryAutomation, KindInjection, "inject", err)
	}
	return nil
}

// paste routes the message through the clipboard: save the user's
// clipboard, write the message, Ctrl+V, then restore. Restoration is
// attempted even when the paste fails.
func (inj *Injector) paste(ctx context.Context, message string) error {
	saved, savedOK := "", false
	if prev, err := inj.driver.ReadClipboard(); err == nil {
		saved, savedOK = prev, true
	}

	if err := inj.driver.WriteClipboard(message); err != nil {
		return WrapErr(CategoryAutomation, KindClipboard, "inject", err)
	}
	pasteErr := inj.driver.SendShortcut(ctx, Shortcut{Ctrl: true, Key: 'v'})

	// Give the target a moment to consume the clipboard before we
	// clobber it with the restored contents.
	_ = inj.clock.Sleep(ctx, inj.cfg.TypingDelay.Std())
	if savedOK {
		_ = inj.driver.WriteClipboard(saved)
	}

	if pasteErr != nil {
		return WrapErr(CategoryAutomation, KindInjection, "inject", pasteErr)
	}
	return nil
}

// Submit presses Enter and confirms the input field cleared, which is
// the only observable signal that the app accepted the message. A field
// still holding the text after the confirmation window means the
// submission was dropped; we re-press up to the configured retry count.
func (inj *Injector) Submit(ctx context.Context, win WindowInfo, message string) error {
	for attempt := 0; attempt < inj.cfg.SubmitRetries; attempt++ {
		if err := inj.locator.EnsureForeground(win); err != nil {
			return err
		}
		if err := inj.driver.SendShortcut(ctx, Shortcut{Key: KeyEnter}); err != nil {
			return WrapErr(CategoryAutomation, KindSubmitFailed, "submit", err)
		}
		cleared, err := inj.awaitCleared(ctx, win, message)
		if err != nil {
			return err
		}
		if cleared {
			return nil
		}
	}
	return Errorf(CategoryAutomation, KindSubmitFailed, "submit",
		"input field still holds the message after %d submit attempts", inj.cfg.SubmitRetries)
}

// awaitCleared polls the input field for one poll interval, reporting
// whether it emptied. An InputText error is treated as cleared: not
// every build of the app exposes the field, and failing the whole send
// on a read-back we cannot do would be worse than proceeding.
func (inj *Injector) awaitCleared(ctx context.Context, win WindowInfo, message string) (bool, error) {
	const steps = 4
	step := inj.cfg.PollInterval.Std() / steps
	for i := 0; i < steps; i++ {
		text, err := inj.driver.InputText(ctx, win.Handle)
		if err != nil {
			return true, nil
		}
		if strings.TrimSpace(text) == "" || !strings.Contains(text, firstLine(message)) {
			return true, nil
		}
		if err := inj.clock.Sleep(ctx, step); err != nil {
			return false, WrapErr(CategoryTimeout, KindSubmitFailed, "submit", err)
		}
	}
	return false, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
