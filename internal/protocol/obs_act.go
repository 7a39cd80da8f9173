package protocol

// OBS (server -> client), sent once per tick.
type ObsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	PlayerID        string  `json:"player_id"`
	Self            SelfObs `json:"self"`
	Events          []Event `json:"events"`
}

type SelfObs struct {
	Pos             [3]int `json:"pos"`
	Yaw             int    `json:"yaw"`
	Pitch           int    `json:"pitch"`
	MainHand        string `json:"main_hand"`
	PermissionLevel int    `json:"permission_level"`
}

type Event map[string]interface{}

// Event types carried in ObsMsg.Events.
const (
	EventActionResult = "ACTION_RESULT"
	EventNotice       = "NOTICE"
	EventBlockUpdate  = "BLOCK_UPDATE"
	EventTeleport     = "TELEPORT"
)

// Notice channels.
const (
	ChannelChat      = "CHAT"
	ChannelActionBar = "ACTION_BAR"
)

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick,omitempty"`
	PlayerID        string       `json:"player_id,omitempty"`
	Instants        []InstantReq `json:"instants"`
}

// Instant types.
const (
	InstantUseBlock   = "USE_BLOCK"
	InstantBreakBlock = "BREAK_BLOCK"
	InstantPlaceBlock = "PLACE_BLOCK"
	InstantSetSign    = "SET_SIGN"
	InstantHold       = "HOLD"
	InstantCommand    = "COMMAND"
)

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Pos   [3]int `json:"pos,omitempty"`
	Block string `json:"block,omitempty"`
	Text  string `json:"text,omitempty"`
	Item  string `json:"item,omitempty"`
}
