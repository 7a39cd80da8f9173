package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// HelloAuth carries either a resume token from an earlier WELCOME or an operator token
// configured in tuning.yaml.
type HelloAuth struct {
	Token         string `json:"token,omitempty"`
	OperatorToken string `json:"operator_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id,omitempty"`
	PlayerID        string      `json:"player_id"`
	ResumeToken     string      `json:"resume_token"`
	WorldParams     WorldParams `json:"world_params"`
	Self            SelfObs     `json:"self"`
}

type WorldParams struct {
	WorldID    string `json:"world_id"`
	TickRateHz int    `json:"tick_rate_hz"`
	Spawn      [3]int `json:"spawn"`
}
