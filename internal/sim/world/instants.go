package world

import (
	"errors"
	"strings"

	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

// maxReach is the Manhattan distance within which a player can touch a block.
const maxReach = 8

const maxSignText = 256

type instantHandler func(*World, *Player, protocol.InstantReq, uint64)

var instantDispatch = map[string]instantHandler{
	protocol.InstantUseBlock:   handleInstantUseBlock,
	protocol.InstantBreakBlock: handleInstantBreakBlock,
	protocol.InstantPlaceBlock: handleInstantPlaceBlock,
	protocol.InstantSetSign:    handleInstantSetSign,
	protocol.InstantHold:       handleInstantHold,
	protocol.InstantCommand:    handleInstantCommand,
}

func (w *World) applyInstant(p *Player, inst protocol.InstantReq, nowTick uint64) {
	h, ok := instantDispatch[inst.Type]
	if !ok {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown instant type"))
		return
	}
	h(w, p, inst, nowTick)
}

// reachable reports E_BLOCKED to p when pos is out of reach.
func reachable(p *Player, inst protocol.InstantReq, pos geom.Pos, nowTick uint64) bool {
	if geom.Manhattan(p.Pos, pos) > maxReach {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBlocked, "too far"))
		return false
	}
	return true
}

func handleInstantUseBlock(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	pos := geom.FromArray(inst.Pos)
	if !reachable(p, inst, pos, nowTick) {
		return
	}
	switch w.useBlock(p, pos) {
	case ResultFail:
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBlocked, "use rejected"))
	case ResultSuccess:
		p.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
	default:
		p.AddEvent(actionResult(nowTick, inst.ID, true, "", "pass"))
	}
}

func handleInstantBreakBlock(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	pos := geom.FromArray(inst.Pos)
	from := w.BlockAt(pos)
	if from == BlockAir {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "nothing to break"))
		return
	}
	if !reachable(p, inst, pos, nowTick) {
		return
	}
	if !w.allowBreak(p, pos) {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoPermission, "break cancelled"))
		return
	}
	w.setBlock(pos, BlockAir)
	w.audit(nowTick, p.id, "SET_BLOCK", pos, from, BlockAir, "BREAK_BLOCK")
	w.broadcastBlockUpdate(pos)
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}

func handleInstantPlaceBlock(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	pos := geom.FromArray(inst.Pos)
	block := strings.ToUpper(strings.TrimSpace(inst.Block))
	if block == "" || block == BlockAir {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing block"))
		return
	}
	if w.BlockAt(pos) != BlockAir {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrConflict, "position occupied"))
		return
	}
	if !reachable(p, inst, pos, nowTick) {
		return
	}
	w.setBlock(pos, block)
	w.audit(nowTick, p.id, "SET_BLOCK", pos, BlockAir, block, "PLACE_BLOCK")
	w.broadcastBlockUpdate(pos)
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}

func handleInstantSetSign(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	pos := geom.FromArray(inst.Pos)
	if !IsSign(w.BlockAt(pos)) {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "sign not found"))
		return
	}
	if !reachable(p, inst, pos, nowTick) {
		return
	}
	if len(inst.Text) > maxSignText {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "text too large"))
		return
	}
	s := w.ensureSign(pos)
	from := s.Text
	s.Text = inst.Text
	s.UpdatedTick = nowTick
	s.UpdatedBy = p.id
	w.audit(nowTick, p.id, "SET_SIGN", pos, from, inst.Text, "SET_SIGN")
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}

func handleInstantHold(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	p.mainHand = strings.ToUpper(strings.TrimSpace(inst.Item))
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}

// ErrUsage makes the dispatcher answer with the command's usage line.
var ErrUsage = errors.New("usage")

func handleInstantCommand(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(inst.Text), "/"))
	if len(fields) == 0 {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "empty command"))
		return
	}
	c, ok := w.commands[strings.ToLower(fields[0])]
	if !ok {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrUnknownCmd, "unknown command"))
		return
	}
	if c.Requires != nil && !c.Requires(p) {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoPermission, "insufficient permission level"))
		return
	}
	reply, err := c.Run(p, fields[1:])
	if errors.Is(err, ErrUsage) {
		p.SendMessage("Usage: " + c.Usage)
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "usage"))
		return
	}
	if reply != "" {
		p.SendMessage(reply)
	}
	if err != nil {
		w.log.Warn().Err(err).Str("event", "world.command_failed").Str("command", c.Name).Str("player", p.id).Msg("command failed")
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInternal, err.Error()))
		return
	}
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}
