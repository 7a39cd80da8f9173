package signlink

import (
	"time"

	"voxelcraft.ai/signlink/internal/sim/geom"
)

// Event kinds.
const (
	EventLinkCreated = "LINK_CREATED"
	EventLinkRemoved = "LINK_REMOVED"
	EventTeleport    = "TELEPORT"
	EventDenied      = "DENIED"
)

// Event records a change to the link table or a use of it.
type Event struct {
	Time      time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Actor     string    `json:"actor"`
	ActorName string    `json:"actor_name,omitempty"`
	A         [3]int    `json:"a"`
	B         [3]int    `json:"b"`
	Reason    string    `json:"reason,omitempty"`
}

// PosA and PosB return the endpoints as positions.
func (e Event) PosA() geom.Pos { return geom.FromArray(e.A) }
func (e Event) PosB() geom.Pos { return geom.FromArray(e.B) }

// EventSink receives events after the link file has been written. Implementations must not
// block for long; they run under the plugin lock.
type EventSink interface {
	WriteLinkEvent(e Event) error
}
