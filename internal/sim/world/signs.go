package world

import (
	"sort"

	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

const (
	BlockAir      = "AIR"
	BlockSign     = "SIGN"
	BlockWallSign = "WALL_SIGN"
)

// IsSign reports whether block is one of the sign block types.
func IsSign(block string) bool {
	return block == BlockSign || block == BlockWallSign
}

var _ Level = (*World)(nil)

func (w *World) BlockAt(pos geom.Pos) string {
	if b, ok := w.blocks[pos]; ok {
		return b
	}
	return BlockAir
}

func (w *World) SignText(pos geom.Pos, line int) (string, bool) {
	if !IsSign(w.BlockAt(pos)) {
		return "", false
	}
	lines := w.signs[pos].Lines()
	if line < 0 || line >= len(lines) {
		return "", false
	}
	return lines[line], true
}

func (w *World) ResendBlock(a Actor, pos geom.Pos) {
	p := w.players[a.ID()]
	if p == nil {
		return
	}
	p.AddEvent(w.blockUpdate(pos))
}

func (w *World) Broadcast(text string) {
	for _, p := range w.sortedPlayers() {
		p.SendMessage(text)
	}
}

// SetBlock places block at pos without running hooks. Used by snapshot import and tests.
func (w *World) SetBlock(pos geom.Pos, block string) {
	w.setBlock(pos, block)
}

// SetSignText writes the text of an existing sign. It returns false if pos is not a sign.
func (w *World) SetSignText(pos geom.Pos, text string) bool {
	if !IsSign(w.BlockAt(pos)) {
		return false
	}
	s := w.ensureSign(pos)
	s.Text = text
	return true
}

func (w *World) setBlock(pos geom.Pos, block string) {
	if block == "" || block == BlockAir {
		delete(w.blocks, pos)
		delete(w.signs, pos)
		return
	}
	w.blocks[pos] = block
	if IsSign(block) {
		w.ensureSign(pos)
	} else {
		delete(w.signs, pos)
	}
}

func (w *World) ensureSign(pos geom.Pos) *Sign {
	s := w.signs[pos]
	if s != nil {
		s.Pos = pos
		return s
	}
	s = &Sign{Pos: pos}
	w.signs[pos] = s
	return s
}

func (w *World) blockUpdate(pos geom.Pos) protocol.Event {
	return protocol.Event{
		"t":     w.CurrentTick(),
		"type":  protocol.EventBlockUpdate,
		"pos":   pos.ToArray(),
		"block": w.BlockAt(pos),
	}
}

func (w *World) broadcastBlockUpdate(pos geom.Pos) {
	ev := w.blockUpdate(pos)
	for _, p := range w.sortedPlayers() {
		p.AddEvent(ev)
	}
}

func sortPositions(ps []geom.Pos) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		if ps[i].Y != ps[j].Y {
			return ps[i].Y < ps[j].Y
		}
		return ps[i].Z < ps[j].Z
	})
}
