// Package input turns player intents into engine calls.
//
// Raw key events and text commands are translated into discrete Command
// values; Apply feeds one command to an engine and reports what happened so
// renderers and cue sinks can react.
package input

import (
	"strings"

	"blockfall/internal/game"
)

// Command is a discrete player action.
type Command int

const (
	CmdUnknown Command = iota
	CmdMoveLeft
	CmdMoveRight
	CmdRotate
	CmdSoftDrop
	CmdHardDrop
	CmdRestart
	CmdTick // timer-driven gravity, never parsed from player input
)

// String returns the canonical command name
func (c Command) String() string {
	switch c {
	case CmdMoveLeft:
		return "left"
	case CmdMoveRight:
		return "right"
	case CmdRotate:
		return "rotate"
	case CmdSoftDrop:
		return "down"
	case CmdHardDrop:
		return "drop"
	case CmdRestart:
		return "restart"
	case CmdTick:
		return "tick"
	default:
		return "unknown"
	}
}

// MarshalText encodes the command by name.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a command name. Unrecognised names decode to CmdUnknown.
func (c *Command) UnmarshalText(text []byte) error {
	if string(text) == CmdTick.String() {
		*c = CmdTick
		return nil
	}
	cmd, _ := ParseCommand(string(text))
	*c = cmd
	return nil
}

// SupportedCommands maps command words to commands
var SupportedCommands = map[string]Command{
	// Move variants
	"left":  CmdMoveLeft,
	"right": CmdMoveRight,

	// Rotate variants
	"rotate": CmdRotate,
	"up":     CmdRotate,

	// Soft drop variants
	"down": CmdSoftDrop,
	"soft": CmdSoftDrop,

	// Hard drop variants
	"drop":  CmdHardDrop,
	"hard":  CmdHardDrop,
	"space": CmdHardDrop,

	// Restart variants
	"restart": CmdRestart,
	"r":       CmdRestart,
}

// ParseCommand returns the command for a word (case-insensitive).
func ParseCommand(s string) (Command, bool) {
	cmd, ok := SupportedCommands[strings.ToLower(strings.TrimSpace(s))]
	return cmd, ok
}

// KeyBindings maps browser KeyboardEvent.key values to commands.
var KeyBindings = map[string]Command{
	"ArrowLeft":  CmdMoveLeft,
	"ArrowRight": CmdMoveRight,
	"ArrowUp":    CmdRotate,
	"ArrowDown":  CmdSoftDrop,
	" ":          CmdHardDrop,
	"r":          CmdRestart,
	"R":          CmdRestart,
}

// ParseKey returns the command bound to a key.
func ParseKey(key string) (Command, bool) {
	cmd, ok := KeyBindings[key]
	return cmd, ok
}

// Outcome reports what a command did.
type Outcome struct {
	Command   Command         `json:"command"`
	Accepted  bool            `json:"accepted"`  // the command changed state
	Drop      game.DropResult `json:"drop"`      // gravity/drop details for down, drop
	Restarted bool            `json:"restarted"` // a new game began
	Playing   bool            `json:"playing"`   // the game was live when the command arrived
}

// GameOver reports whether this command ended the game.
func (o Outcome) GameOver() bool {
	return o.Drop.GameOver
}

// Apply runs one command against the engine.
//
// Moves and rotation are ignored once the game is over; restart is honoured
// only then.
func Apply(e *game.Engine, cmd Command) Outcome {
	out := Outcome{Command: cmd, Playing: !e.IsGameOver()}

	switch cmd {
	case CmdMoveLeft:
		out.Accepted = e.MoveLeft()
	case CmdMoveRight:
		out.Accepted = e.MoveRight()
	case CmdRotate:
		out.Accepted = e.Rotate()
	case CmdSoftDrop:
		out.Drop = e.SoftDrop()
		out.Accepted = out.Drop.Moved || out.Drop.Locked
	case CmdHardDrop:
		out.Drop = e.HardDrop()
		out.Accepted = out.Drop.Locked
	case CmdRestart:
		if e.IsGameOver() {
			e.Restart()
			out.Restarted = true
			out.Accepted = true
		}
	}

	return out
}

// Gravity applies one timer-driven fall step.
func Gravity(e *game.Engine) Outcome {
	out := Outcome{Command: CmdTick, Playing: !e.IsGameOver()}
	out.Drop = e.Tick()
	out.Accepted = out.Drop.Moved || out.Drop.Locked
	return out
}
