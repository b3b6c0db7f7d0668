//go:build !windows

// Copyright 2025 Kyungsuk Kim
//
// Non-Windows stub so the module builds and tests run anywhere; every
// UI operation reports that a Windows host is required.
package automation

import (
	"context"
	"errors"
	"time"
)

var errNotWindows = errors.New("windows desktop automation requires a Windows host")

type stubDriver struct{}

// NewDriver returns the platform Driver. Off Windows it is a stub that
// fails every operation; the higher layers are exercised through test
// fakes instead.
func NewDriver() Driver { return stubDriver{} }

func (stubDriver) ListWindows(context.Context) ([]WindowInfo, error) { return nil, errNotWindows }
func (stubDriver) Focus(context.Context, Handle) error               { return errNotWindows }
func (stubDriver) IsForeground(Handle) (bool, error)                 { return false, errNotWindows }
func (stubDriver) Exists(Handle) bool                                { return false }
func (stubDriver) TypeText(context.Context, string, time.Duration) error {
	return errNotWindows
}
func (stubDriver) SendShortcut(context.Context, Shortcut) error { return errNotWindows }
func (stubDriver) ReadClipboard() (string, error)               { return "", errNotWindows }
func (stubDriver) WriteClipboard(string) error                  { return errNotWindows }
func (stubDriver) CaptureText(context.Context, Handle) (string, error) {
	return "", errNotWindows
}
func (stubDriver) InputText(context.Context, Handle) (string, error) {
	return "", errNotWindows
}
