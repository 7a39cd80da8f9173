package world

import "voxelcraft.ai/signlink/internal/sim/geom"

// Result is the outcome of a block-use hook.
type Result int

const (
	// ResultPass lets the next plugin (or the default behaviour) handle the interaction.
	ResultPass Result = iota
	ResultSuccess
	ResultFail
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultFail:
		return "FAIL"
	default:
		return "PASS"
	}
}

// Actor is the player side of a hook call.
type Actor interface {
	ID() string
	Name() string
	PermissionLevel() int
	HasPermissionLevel(level int) bool
	MainHandItem() string
	Position() geom.Pos
	// SendActionBar shows a short status line; SendMessage writes to chat.
	SendActionBar(text string)
	SendMessage(text string)
	// Teleport moves the actor, keeping yaw and pitch.
	Teleport(to geom.Pos)
}

// Level is the world side of a hook call.
type Level interface {
	BlockAt(pos geom.Pos) string
	// SignText returns line (0-based) of the sign at pos.
	SignText(pos geom.Pos, line int) (string, bool)
	// ResendBlock pushes the current state of pos to a, undoing a client-side prediction.
	ResendBlock(a Actor, pos geom.Pos)
	Broadcast(text string)
}

// Plugin receives world callbacks. Hooks run on the world goroutine, in registration order.
type Plugin interface {
	Name() string
	HandleServerStarted(lvl Level)
	// HandleUseBlock returning anything but ResultPass stops further handling.
	HandleUseBlock(a Actor, lvl Level, pos geom.Pos) Result
	// HandleBreakBlock returning false cancels the break.
	HandleBreakBlock(a Actor, lvl Level, pos geom.Pos) bool
	HandleLeave(a Actor)
}

// NopPlugin implements Plugin with no-ops; embed it to override only some hooks.
type NopPlugin struct{}

func (NopPlugin) Name() string                                 { return "nop" }
func (NopPlugin) HandleServerStarted(Level)                    {}
func (NopPlugin) HandleUseBlock(Actor, Level, geom.Pos) Result { return ResultPass }
func (NopPlugin) HandleBreakBlock(Actor, Level, geom.Pos) bool { return true }
func (NopPlugin) HandleLeave(Actor)                            {}

var _ Plugin = NopPlugin{}

// Command is a chat command registered by a plugin.
type Command struct {
	Name  string
	Usage string
	// Requires is checked before Run; nil means everyone may run the command.
	Requires func(a Actor) bool
	Run      func(a Actor, args []string) (string, error)
}

func (w *World) RegisterPlugin(p Plugin) {
	w.plugins = append(w.plugins, p)
}

func (w *World) RegisterCommand(c Command) {
	w.commands[c.Name] = c
}

func (w *World) useBlock(p *Player, pos geom.Pos) Result {
	for _, pl := range w.plugins {
		if r := pl.HandleUseBlock(p, w, pos); r != ResultPass {
			return r
		}
	}
	return ResultPass
}

func (w *World) allowBreak(p *Player, pos geom.Pos) bool {
	for _, pl := range w.plugins {
		if !pl.HandleBreakBlock(p, w, pos) {
			return false
		}
	}
	return true
}
