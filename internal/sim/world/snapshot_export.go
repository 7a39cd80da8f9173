package world

import (
	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

// ExportSnapshot captures blocks, signs and players in a deterministic order.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	positions := make([]geom.Pos, 0, len(w.blocks))
	for pos := range w.blocks {
		positions = append(positions, pos)
	}
	sortPositions(positions)

	blocks := make([]snapshot.BlockV1, 0, len(positions))
	var signs []snapshot.SignV1
	for _, pos := range positions {
		blocks = append(blocks, snapshot.BlockV1{Pos: pos.ToArray(), Block: w.blocks[pos]})
		if s := w.signs[pos]; s != nil {
			signs = append(signs, snapshot.SignV1{
				Pos:         pos.ToArray(),
				Text:        s.Text,
				UpdatedTick: s.UpdatedTick,
				UpdatedBy:   s.UpdatedBy,
			})
		}
	}

	players := make([]snapshot.PlayerV1, 0, len(w.players))
	for _, p := range w.sortedPlayers() {
		players = append(players, snapshot.PlayerV1{
			ID:              p.id,
			Name:            p.name,
			Pos:             p.Pos.ToArray(),
			Yaw:             p.Yaw,
			Pitch:           p.Pitch,
			PermissionLevel: p.permissionLevel,
			MainHand:        p.mainHand,
			ResumeToken:     p.ResumeToken,
		})
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate: w.cfg.TickRateHz,
		Spawn:    w.cfg.Spawn.ToArray(),
		Blocks:   blocks,
		Signs:    signs,
		Players:  players,
		Counters: snapshot.CountersV1{NextPlayer: w.nextPlayerNum.Load()},
	}
}
