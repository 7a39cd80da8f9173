package world

import (
	"fmt"

	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

// ImportSnapshot replaces the world state with snap. Players come back disconnected; they
// reattach with their resume token. It must be called before Run.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q does not match %q", snap.Header.WorldID, w.cfg.ID)
	}

	w.blocks = map[geom.Pos]string{}
	w.signs = map[geom.Pos]*Sign{}
	for _, b := range snap.Blocks {
		w.setBlock(geom.FromArray(b.Pos), b.Block)
	}
	for _, s := range snap.Signs {
		pos := geom.FromArray(s.Pos)
		if !IsSign(w.BlockAt(pos)) {
			continue
		}
		sign := w.ensureSign(pos)
		sign.Text = s.Text
		sign.UpdatedTick = s.UpdatedTick
		sign.UpdatedBy = s.UpdatedBy
	}

	w.players = map[string]*Player{}
	w.clients = map[string]*clientState{}
	for _, p := range snap.Players {
		w.players[p.ID] = &Player{
			w:               w,
			id:              p.ID,
			name:            p.Name,
			Pos:             geom.FromArray(p.Pos),
			Yaw:             p.Yaw,
			Pitch:           p.Pitch,
			permissionLevel: p.PermissionLevel,
			mainHand:        p.MainHand,
			ResumeToken:     p.ResumeToken,
		}
	}
	w.nextPlayerNum.Store(snap.Counters.NextPlayer)
	// The snapshot was taken while stepping Header.Tick; resume with the next one.
	w.tick.Store(snap.Header.Tick + 1)
	return nil
}
