//go:build windows

// Copyright 2025 Kyungsuk Kim
//
// Win32 implementation of Driver: user32 for window and keyboard work,
// the system clipboard for bulk text transfer.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unicode/utf16"
	"unsafe"

	"github.com/atotto/clipboard"
	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows          = user32.NewProc("EnumWindows")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
	procIsWindow             = user32.NewProc("IsWindow")
	procIsIconic             = user32.NewProc("IsIconic")
	procShowWindow           = user32.NewProc("ShowWindow")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")
	procGetForegroundWindow  = user32.NewProc("GetForegroundWindow")
	procBringWindowToTop     = user32.NewProc("BringWindowToTop")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procSendInput            = user32.NewProc("SendInput")
	procGetWindowThreadPID   = user32.NewProc("GetWindowThreadProcessId")
	procGetGUIThreadInfo     = user32.NewProc("GetGUIThreadInfo")
	procSendMessageW         = user32.NewProc("SendMessageW")
)

const (
	swRestore = 9

	inputKeyboard      = 1
	keyeventfKeyUp     = 0x0002
	keyeventfUnicode   = 0x0004
	keyeventfScancode  = 0x0008
	keyeventfExtended  = 0x0001

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkReturn  = 0x0D

	wmGetText       = 0x000D
	wmGetTextLength = 0x000E
)

type rect struct {
	Left, Top, Right, Bottom int32
}

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// input mirrors the Win32 INPUT struct layout on amd64: a 4-byte type,
// 4 bytes of alignment, the keyboard member, and tail padding up to the
// size of the union's largest member (MOUSEINPUT).
type input struct {
	inputType uint32
	ki        keyboardInput
	_         [8]byte
}

type guiThreadInfo struct {
	cbSize        uint32
	flags         uint32
	hwndActive    windows.Handle
	hwndFocus     windows.Handle
	hwndCapture   windows.Handle
	hwndMenuOwner windows.Handle
	hwndMoveSize  windows.Handle
	hwndCaret     windows.Handle
	rcCaret       rect
}

// WindowsDriver is the production Driver backed by user32.
type WindowsDriver struct{}

// NewDriver returns the platform Driver.
func NewDriver() Driver { return &WindowsDriver{} }

// syscall.NewCallback never releases its slot, and the process has room
// for only a couple thousand of them, so the EnumWindows callback is
// created once. enumMu serializes enumerations over the shared result
// slice.
var (
	enumMu      sync.Mutex
	enumResults []WindowInfo
	enumProc    = syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		if visible == 0 {
			return 1
		}
		title := windowTitle(hwnd)
		if title == "" {
			return 1
		}
		var r rect
		procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
		enumResults = append(enumResults, WindowInfo{
			Handle: Handle(hwnd),
			Title:  title,
			Width:  int(r.Right - r.Left),
			Height: int(r.Bottom - r.Top),
		})
		return 1
	})
)

func (d *WindowsDriver) ListWindows(ctx context.Context) ([]WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enumMu.Lock()
	defer enumMu.Unlock()
	enumResults = nil
	ret, _, err := procEnumWindows.Call(enumProc, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	out := make([]WindowInfo, len(enumResults))
	copy(out, enumResults)
	return out, nil
}

func windowTitle(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), n+1)
	return windows.UTF16ToString(buf)
}

func (d *WindowsDriver) Exists(h Handle) bool {
	ret, _, _ := procIsWindow.Call(uintptr(h))
	return ret != 0
}

func (d *WindowsDriver) Focus(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if iconic, _, _ := procIsIconic.Call(uintptr(h)); iconic != 0 {
		procShowWindow.Call(uintptr(h), swRestore)
	}
	procBringWindowToTop.Call(uintptr(h))
	ret, _, err := procSetForegroundWindow.Call(uintptr(h))
	if ret == 0 {
		return fmt.Errorf("SetForegroundWindow: %w", err)
	}
	return nil
}

func (d *WindowsDriver) IsForeground(h Handle) (bool, error) {
	fg, _, _ := procGetForegroundWindow.Call()
	return fg == uintptr(h), nil
}

func (d *WindowsDriver) TypeText(ctx context.Context, text string, delay time.Duration) error {
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r == '\r' {
			continue
		}
		if r == '\n' {
			// Plain Enter would submit; Shift+Enter inserts a line break.
			if err := d.SendShortcut(ctx, Shortcut{Shift: true, Key: KeyEnter}); err != nil {
				return err
			}
		} else if err := sendUnicode(r); err != nil {
			return err
		}
		if delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// sendUnicode injects one rune as KEYEVENTF_UNICODE down/up events,
// splitting astral runes into surrogate pairs.
func sendUnicode(r rune) error {
	units := utf16.Encode([]rune{r})
	inputs := make([]input, 0, len(units)*2)
	for _, u := range units {
		inputs = append(inputs,
			input{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyeventfUnicode}},
			input{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyeventfUnicode | keyeventfKeyUp}},
		)
	}
	return sendInputs(inputs)
}

func (d *WindowsDriver) SendShortcut(ctx context.Context, s Shortcut) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var mods []uint16
	if s.Ctrl {
		mods = append(mods, vkControl)
	}
	if s.Shift {
		mods = append(mods, vkShift)
	}
	if s.Alt {
		mods = append(mods, vkMenu)
	}
	key := vkForRune(s.Key)
	if key == 0 {
		return fmt.Errorf("no virtual key for %q", s.Key)
	}

	var inputs []input
	for _, m := range mods {
		inputs = append(inputs, input{inputType: inputKeyboard, ki: keyboardInput{wVk: m}})
	}
	inputs = append(inputs,
		input{inputType: inputKeyboard, ki: keyboardInput{wVk: key}},
		input{inputType: inputKeyboard, ki: keyboardInput{wVk: key, dwFlags: keyeventfKeyUp}},
	)
	for i := len(mods) - 1; i >= 0; i-- {
		inputs = append(inputs, input{inputType: inputKeyboard, ki: keyboardInput{wVk: mods[i], dwFlags: keyeventfKeyUp}})
	}
	return sendInputs(inputs)
}

func vkForRune(r rune) uint16 {
	switch {
	case r == KeyEnter:
		return vkReturn
	case r >= 'a' && r <= 'z':
		return uint16(r - 'a' + 'A')
	case r >= 'A' && r <= 'Z':
		return uint16(r)
	case r >= '0' && r <= '9':
		return uint16(r)
	default:
		return 0
	}
}

func sendInputs(inputs []input) error {
	if len(inputs) == 0 {
		return nil
	}
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput delivered %d of %d events: %w", n, len(inputs), err)
	}
	return nil
}

func (d *WindowsDriver) ReadClipboard() (string, error) {
	return clipboard.ReadAll()
}

func (d *WindowsDriver) WriteClipboard(text string) error {
	return clipboard.WriteAll(text)
}

// CaptureText selects the whole conversation and copies it, restoring
// the user's clipboard afterwards.
func (d *WindowsDriver) CaptureText(ctx context.Context, h Handle) (string, error) {
	saved, savedOK := "", false
	if prev, err := clipboard.ReadAll(); err == nil {
		saved, savedOK = prev, true
	}
	defer func() {
		if savedOK {
			clipboard.WriteAll(saved)
		}
	}()

	// Copy needs a sentinel on the clipboard so an app that copies
	// nothing is distinguishable from one that copied empty text.
	if err := clipboard.WriteAll(""); err != nil {
		return "", fmt.Errorf("clipboard clear: %w", err)
	}
	if err := d.SendShortcut(ctx, Shortcut{Ctrl: true, Key: 'a'}); err != nil {
		return "", err
	}
	if err := d.SendShortcut(ctx, Shortcut{Ctrl: true, Key: 'c'}); err != nil {
		return "", err
	}
	if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
		return "", err
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("clipboard read: %w", err)
	}
	return text, nil
}

// InputText reads the focused control's text over WM_GETTEXT, located
// through GetGUIThreadInfo on the window's owning thread.
func (d *WindowsDriver) InputText(ctx context.Context, h Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tid, _, _ := procGetWindowThreadPID.Call(uintptr(h), 0)
	if tid == 0 {
		return "", errors.New("GetWindowThreadProcessId failed")
	}
	gti := guiThreadInfo{cbSize: uint32(unsafe.Sizeof(guiThreadInfo{}))}
	ret, _, err := procGetGUIThreadInfo.Call(tid, uintptr(unsafe.Pointer(&gti)))
	if ret == 0 {
		return "", fmt.Errorf("GetGUIThreadInfo: %w", err)
	}
	if gti.hwndFocus == 0 {
		return "", errors.New("no focused control")
	}
	n, _, _ := procSendMessageW.Call(uintptr(gti.hwndFocus), wmGetTextLength, 0, 0)
	if n == 0 {
		return "", nil
	}
	buf := make([]uint16, n+1)
	procSendMessageW.Call(uintptr(gti.hwndFocus), wmGetText, n+1, uintptr(unsafe.Pointer(&buf[0])))
	return windows.UTF16ToString(buf), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
