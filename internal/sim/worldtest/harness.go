package worldtest

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/geom"
	world "voxelcraft.ai/signlink/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step()/StepFor() issues ACT via StepOnce()
// - Per-player Out channels carry OBS JSON
//
// It avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	DefaultPlayerID string

	sessions map[string]*session
}

func NewWorld(t *testing.T, cfg world.WorldConfig) *world.World {
	t.Helper()
	w, err := world.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func NewHarness(t *testing.T, cfg world.WorldConfig, playerName string) *Harness {
	t.Helper()
	return NewHarnessWithWorld(t, NewWorld(t, cfg), playerName)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance,
// e.g. one with plugins registered or a snapshot imported.
func NewHarnessWithWorld(t *testing.T, w *world.World, playerName string) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{
		T:        t,
		W:        w,
		sessions: map[string]*session{},
	}
	if playerName != "" {
		h.DefaultPlayerID = h.Join(playerName)
	}
	return h
}

type session struct {
	PlayerID string
	Out      chan []byte
	lastObs  protocol.ObsMsg
}

func (h *Harness) Join(name string) string {
	h.T.Helper()
	return h.JoinWithToken(name, "")
}

// JoinWithToken joins presenting an operator token.
func (h *Harness) JoinWithToken(name, operatorToken string) string {
	h.T.Helper()
	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	h.W.StepOnce([]world.JoinRequest{{
		Name:          name,
		OperatorToken: operatorToken,
		Out:           out,
		Resp:          resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.PlayerID == "" {
		h.T.Fatalf("join returned empty player id")
	}
	s := &session{PlayerID: jr.Welcome.PlayerID, Out: out}
	h.sessions[s.PlayerID] = s
	h.drainAllObs()
	return s.PlayerID
}

func (h *Harness) Leave(playerID string) {
	h.T.Helper()
	h.W.StepOnce(nil, []world.LeaveRequest{{PlayerID: playerID}}, nil)
	delete(h.sessions, playerID)
	h.drainAllObs()
}

// Start fires the server-started hooks and delivers the resulting OBS.
func (h *Harness) Start() {
	h.T.Helper()
	h.W.Start()
	h.StepNoop()
}

func (h *Harness) LastObs() protocol.ObsMsg {
	return h.LastObsFor(h.DefaultPlayerID)
}

func (h *Harness) LastObsFor(playerID string) protocol.ObsMsg {
	h.T.Helper()
	s := h.sessions[playerID]
	if s == nil {
		h.T.Fatalf("unknown player id: %q", playerID)
	}
	return s.lastObs
}

func (h *Harness) Step(instants ...protocol.InstantReq) protocol.ObsMsg {
	return h.StepFor(h.DefaultPlayerID, instants...)
}

func (h *Harness) StepFor(playerID string, instants ...protocol.InstantReq) protocol.ObsMsg {
	h.T.Helper()
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            h.W.CurrentTick(),
		PlayerID:        playerID,
		Instants:        instants,
	}
	h.W.StepOnce(nil, nil, []world.ActionEnvelope{{
		PlayerID: playerID,
		Act:      act,
	}})
	h.drainAllObs()
	return h.LastObsFor(playerID)
}

func (h *Harness) StepNoop() protocol.ObsMsg {
	h.T.Helper()
	h.W.StepOnce(nil, nil, nil)
	h.drainAllObs()
	if h.DefaultPlayerID == "" {
		return protocol.ObsMsg{}
	}
	return h.LastObs()
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Export at currentTick-1 so an import resumes at currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

// PlaceSign places a sign carrying text, bypassing hooks and reach checks.
func (h *Harness) PlaceSign(pos geom.Pos, text string) {
	h.T.Helper()
	h.W.SetBlock(pos, world.BlockSign)
	if !h.W.SetSignText(pos, text) {
		h.T.Fatalf("SetSignText(%v) returned false", pos)
	}
}

func (h *Harness) drainAllObs() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOneObs(s)
	}
}

func (h *Harness) drainOneObs(s *session) {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-s.Out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var obs protocol.ObsMsg
	if err := json.Unmarshal(last, &obs); err != nil {
		h.T.Fatalf("unmarshal OBS: %v", err)
	}
	s.lastObs = obs
}
