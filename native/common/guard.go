package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned by Guard when the module's entry points are
// disabled by an operator pause.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's custody entry points are paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. The returned error wraps
// ErrModulePaused and names the module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%s: %w", module, ErrModulePaused)
	}
	return nil
}
