// Copyright 2025 Kyungsuk Kim
//
// Session orchestration: serialized high-level operations over the
// locate/inject/capture primitives, with retry.
package automation

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
)

// State names the session's current phase, surfaced in debug output.
type State string

const (
	StateIdle      State = "idle"
	StateLocating  State = "locating"
	StateReady     State = "ready"
	StateSending   State = "sending"
	StateCapturing State = "capturing"
	StateResetting State = "resetting"
	StateFailed    State = "failed"
)

// Session serializes operations against the single ChatGPT window. Only
// one operation runs at a time: a second caller blocks until the first
// finishes or its own context expires, whichever comes first. Each
// attempt locates the window afresh, so a window restarted between
// operations is picked up transparently.
type Session struct {
	locator  *Locator
	injector *Injector
	capturer *Capturer
	history  *History
	driver   Driver
	clock    Clock
	cfg      config.AutomationConfig

	sem   chan struct{} // capacity 1; held for the duration of an operation
	state chan State    // capacity 1; current state, read-modify-write
}

// NewSession wires the automation components into a session.
func NewSession(driver Driver, clock Clock, winCfg config.WindowConfig, autoCfg config.AutomationConfig) *Session {
	locator := NewLocator(driver, clock, winCfg)
	s := &Session{
		locator:  locator,
		injector: NewInjector(driver, clock, locator, autoCfg),
		capturer: NewCapturer(driver, clock, autoCfg),
		history:  NewHistory(driver, clock),
		driver:   driver,
		clock:    clock,
		cfg:      autoCfg,
		sem:      make(chan struct{}, 1),
		state:    make(chan State, 1),
	}
	s.state <- StateIdle
	return s
}

// State returns the session's current phase without blocking operations.
func (s *Session) State() State {
	st := <-s.state
	s.state <- st
	return st
}

func (s *Session) setState(st State) {
	<-s.state
	s.state <- st
}

// settle returns the session to Idle when the operation ends. A Failed
// state is kept so callers can observe it; the next operation clears it
// when it enters Locating.
func (s *Session) settle() {
	st := <-s.state
	if st != StateFailed {
		st = StateIdle
	}
	s.state <- st
}

// acquire claims the session or fails with session_busy once ctx
// expires while waiting.
func (s *Session) acquire(ctx context.Context, op string) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return Errorf(CategoryBusy, KindSessionBusy, op,
			"another operation is in progress and did not finish in time")
	}
}

func (s *Session) release() {
	<-s.sem
}

// SendMessage delivers message and returns the captured reply. The
// timeout bounds response capture only; locate, focus, and injection
// run under ctx. Transient automation failures before capture begins
// are retried with a fresh window search; a timeout during capture is
// final and carries any partial text.
func (s *Session) SendMessage(ctx context.Context, message string, timeout config.Duration) (string, error) {
	if err := s.acquire(ctx, "send_message"); err != nil {
		return "", err
	}
	defer s.release()
	defer s.settle()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			ae := AsError(lastErr)
			if !ae.Retryable() {
				break
			}
			log.Printf("send_message attempt %d failed (%s), retrying: %v", attempt, ae.Kind, lastErr)
			if err := s.clock.Sleep(ctx, s.cfg.Backoff.Std()); err != nil {
				break
			}
		}
		reply, err := s.sendOnce(ctx, message, timeout)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	s.setState(StateFailed)
	return "", lastErr
}

func (s *Session) sendOnce(ctx context.Context, message string, timeout config.Duration) (string, error) {
	s.setState(StateLocating)
	win, err := s.locator.Locate(ctx)
	if err != nil {
		return "", err
	}
	if err := s.locator.FocusWindow(ctx, win); err != nil {
		return "", err
	}
	s.setState(StateReady)

	baseline, err := s.capturer.Baseline(ctx, win)
	if err != nil {
		return "", err
	}

	s.setState(StateSending)
	if err := s.injector.Inject(ctx, win, message); err != nil {
		return "", err
	}
	if err := s.injector.Submit(ctx, win, message); err != nil {
		return "", err
	}

	// Past this point the message is in flight; retrying would double
	// send, so capture failures are final.
	s.setState(StateCapturing)
	reply, err := s.capturer.Capture(ctx, win, baseline, message, timeout)
	if err != nil {
		var ae *Error
		if errors.As(err, &ae) {
			ae.Category = CategoryTimeout
		}
		return reply, err
	}
	return reply, nil
}

// GetHistory returns up to limit recent messages, oldest first.
func (s *Session) GetHistory(ctx context.Context, limit int) ([]Message, error) {
	if err := s.acquire(ctx, "get_conversation_history"); err != nil {
		return nil, err
	}
	defer s.release()
	defer s.settle()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			if !AsError(lastErr).Retryable() {
				break
			}
			if err := s.clock.Sleep(ctx, s.cfg.Backoff.Std()); err != nil {
				break
			}
		}
		s.setState(StateLocating)
		win, err := s.locator.Locate(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if err := s.locator.FocusWindow(ctx, win); err != nil {
			lastErr = err
			continue
		}
		s.setState(StateReady)
		msgs, err := s.history.Read(ctx, win, limit)
		if err != nil {
			lastErr = err
			continue
		}
		return msgs, nil
	}
	s.setState(StateFailed)
	return nil, lastErr
}

// Reset starts a fresh conversation. Ctrl+N is tried first; some app
// builds only honour Ctrl+Shift+N, so that follows when the transcript
// does not visibly clear. An unconfirmed reset is reported rather than
// assumed.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.acquire(ctx, "reset_conversation"); err != nil {
		return err
	}
	defer s.release()
	defer s.settle()

	s.setState(StateLocating)
	win, err := s.locator.Locate(ctx)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	if err := s.locator.FocusWindow(ctx, win); err != nil {
		s.setState(StateFailed)
		return err
	}

	s.setState(StateResetting)
	before, err := s.driver.CaptureText(ctx, win.Handle)
	if err != nil {
		s.setState(StateFailed)
		return WrapErr(CategoryAutomation, KindResetUnconfirmed, "reset", err)
	}
	if CleanResponse(before) == "" && s.inputEmpty(ctx, win) {
		// Nothing to clear; confirm trivially.
		return nil
	}

	for _, chord := range []Shortcut{
		{Ctrl: true, Key: 'n'},
		{Ctrl: true, Shift: true, Key: 'n'},
	} {
		if err := s.driver.SendShortcut(ctx, chord); err != nil {
			continue
		}
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval.Std()); err != nil {
			s.setState(StateFailed)
			return WrapErr(CategoryTimeout, KindResetUnconfirmed, "reset", err)
		}
		after, err := s.driver.CaptureText(ctx, win.Handle)
		if err != nil {
			continue
		}
		if cleared(before, after) && s.inputEmpty(ctx, win) {
			return nil
		}
	}

	s.setState(StateFailed)
	return Errorf(CategoryAutomation, KindResetUnconfirmed, "reset",
		"conversation view did not clear after new-chat shortcuts")
}

// inputEmpty reports whether the input field holds no leftover draft.
// A failed read counts as empty, matching the submit confirmation: not
// every app build exposes the field.
func (s *Session) inputEmpty(ctx context.Context, win WindowInfo) bool {
	text, err := s.driver.InputText(ctx, win.Handle)
	return err != nil || strings.TrimSpace(text) == ""
}

// cleared reports whether the transcript visibly reset: the new capture
// is empty or no longer contains the old conversation's tail.
func cleared(before, after string) bool {
	cleanAfter := CleanResponse(after)
	if cleanAfter == "" {
		return true
	}
	anchor := tail(CleanResponse(before), 100)
	return anchor != "" && !strings.Contains(cleanAfter, anchor)
}
