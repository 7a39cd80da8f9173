package world

import (
	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

// Player is a connected (or resumable) participant. It implements Actor; all methods must
// be called on the world goroutine.
type Player struct {
	w *World

	id              string
	name            string
	permissionLevel int
	mainHand        string

	Pos   geom.Pos
	Yaw   int
	Pitch int

	ResumeToken string

	events []protocol.Event
}

var _ Actor = (*Player)(nil)

func (p *Player) ID() string           { return p.id }
func (p *Player) Name() string         { return p.name }
func (p *Player) PermissionLevel() int { return p.permissionLevel }
func (p *Player) MainHandItem() string { return p.mainHand }
func (p *Player) Position() geom.Pos   { return p.Pos }

func (p *Player) HasPermissionLevel(level int) bool { return p.permissionLevel >= level }

func (p *Player) AddEvent(e protocol.Event) { p.events = append(p.events, e) }

// Events returns the events queued since the last OBS.
func (p *Player) Events() []protocol.Event { return p.events }

func (p *Player) SendActionBar(text string) {
	p.AddEvent(protocol.Event{
		"t":       p.w.CurrentTick(),
		"type":    protocol.EventNotice,
		"channel": protocol.ChannelActionBar,
		"text":    text,
	})
}

func (p *Player) SendMessage(text string) {
	p.AddEvent(protocol.Event{
		"t":       p.w.CurrentTick(),
		"type":    protocol.EventNotice,
		"channel": protocol.ChannelChat,
		"text":    text,
	})
}

func (p *Player) Teleport(to geom.Pos) {
	from := p.Pos
	p.Pos = to
	p.AddEvent(protocol.Event{
		"t":     p.w.CurrentTick(),
		"type":  protocol.EventTeleport,
		"from":  from.ToArray(),
		"to":    to.ToArray(),
		"yaw":   p.Yaw,
		"pitch": p.Pitch,
	})
}

func (p *Player) selfObs() protocol.SelfObs {
	return protocol.SelfObs{
		Pos:             p.Pos.ToArray(),
		Yaw:             p.Yaw,
		Pitch:           p.Pitch,
		MainHand:        p.mainHand,
		PermissionLevel: p.permissionLevel,
	}
}

func (p *Player) buildObs(tick uint64) protocol.ObsMsg {
	events := make([]protocol.Event, len(p.events))
	copy(events, p.events)
	return protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		PlayerID:        p.id,
		Self:            p.selfObs(),
		Events:          events,
	}
}
