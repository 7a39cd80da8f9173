package signlink

import (
	"voxelcraft.ai/signlink/internal/metrics"
	"voxelcraft.ai/signlink/internal/signlink/lang"
	"voxelcraft.ai/signlink/internal/sim/world"
)

// Command returns the "teleportmod reload" command. It needs the configured permission level.
func (p *Plugin) Command() world.Command {
	return world.Command{
		Name:     CommandName,
		Usage:    CommandName + " reload",
		Requires: p.mayAdminister,
		Run:      p.runCommand,
	}
}

func (p *Plugin) mayAdminister(a world.Actor) bool {
	if a.HasPermissionLevel(p.cfg.Get().PermissionLevel) {
		return true
	}
	metrics.RecordPermissionDenied("command")
	p.mu.Lock()
	p.emit(Event{Kind: EventDenied, Actor: a.ID(), ActorName: a.Name(), A: a.Position().ToArray(), Reason: "command"})
	p.mu.Unlock()
	return false
}

func (p *Plugin) runCommand(a world.Actor, args []string) (string, error) {
	if len(args) != 1 || args[0] != "reload" {
		return "", world.ErrUsage
	}
	// Failures are logged by Reload; the reply is the same either way.
	_ = p.Reload()
	p.log.Info().Str("event", "signlink.reload_command").Str("actor", a.ID()).Msg("teleport config reloaded by command")

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loc.T(lang.KeyReloaded), nil
}
