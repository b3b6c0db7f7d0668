// Copyright 2025 Kyungsuk Kim
//
// Driver abstracts the platform primitives the automation layer needs,
// keeping the higher-level logic testable off-Windows.
package automation

import (
	"context"
	"time"
)

// Handle identifies a native window for the lifetime of a session. On
// Windows this is the HWND value.
type Handle uintptr

// WindowInfo describes a candidate application window.
type WindowInfo struct {
	Handle Handle
	Title  string
	Width  int
	Height int
}

// Shortcut is a keyboard chord sent as a single gesture, such as Ctrl+V
// or Ctrl+Shift+N.
type Shortcut struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Key   rune // base key, e.g. 'v', 'n', 'a'; KeyEnter for Return
}

// KeyEnter is the Key value for the Return key in a Shortcut.
const KeyEnter = '\r'

// Driver is the platform seam. The Windows implementation talks to
// user32 and the system clipboard; tests substitute a scripted fake.
//
// All methods that touch the UI take a context so callers can bound
// them; implementations poll or block in small steps and honour
// cancellation between steps.
type Driver interface {
	// ListWindows enumerates top-level visible windows.
	ListWindows(ctx context.Context) ([]WindowInfo, error)

	// Focus brings the window to the foreground. It returns an error when
	// the window no longer exists or foreground activation is refused.
	Focus(ctx context.Context, h Handle) error

	// IsForeground reports whether h currently holds the foreground.
	IsForeground(h Handle) (bool, error)

	// Exists reports whether h still refers to a live window.
	Exists(h Handle) bool

	// TypeText injects text as synthetic keystrokes into the focused
	// window, pausing delay between characters. Newlines are sent as
	// Shift+Enter so they do not submit the input.
	TypeText(ctx context.Context, text string, delay time.Duration) error

	// SendShortcut presses a keyboard chord.
	SendShortcut(ctx context.Context, s Shortcut) error

	// ReadClipboard returns the current clipboard text.
	ReadClipboard() (string, error)

	// WriteClipboard replaces the clipboard text.
	WriteClipboard(text string) error

	// CaptureText returns the visible conversation text of the window,
	// selecting all and copying through the clipboard. The prior
	// clipboard contents are restored before returning.
	CaptureText(ctx context.Context, h Handle) (string, error)

	// InputText returns the current contents of the message input field,
	// used to confirm submission cleared it.
	InputText(ctx context.Context, h Handle) (string, error)
}
