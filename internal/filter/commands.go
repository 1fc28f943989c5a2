package filter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// Commands understood by Command.
const (
	CommandRecenter = "recenter"
	CommandPause    = "pause"
	CommandResume   = "resume"
)

// AllowedCommands lists the names accepted by Command.
var AllowedCommands = []string{CommandRecenter, CommandPause, CommandResume}

// ErrUnknownCommand is returned for a command not in AllowedCommands.
var ErrUnknownCommand = errors.New("unknown command")

// Command applies a runtime control command. recenter snaps the wheel back to
// centre, pause bypasses the filter so every event passes through unchanged
// and resume re-enables it.
func (f *Filter) Command(name string) error {
	if !slices.Contains(AllowedCommands, name) {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch name {
	case CommandRecenter:
		f.wheelAngle = 0
		f.prev.State = wheel.Freewheel
	case CommandPause:
		f.paused = true
	case CommandResume:
		if f.paused {
			// stale stick values must not produce a jump on the first report
			f.paused = false
			f.lastReport = f.clock.Now()
		}
	}
	return nil
}
