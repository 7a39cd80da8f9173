package world

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxelcraft.ai/signlink/internal/metrics"
	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

// Operator grants a permission level to a player presenting Token in HELLO.
type Operator struct {
	Level int
	Token string
}

type WorldConfig struct {
	ID                     string
	TickRateHz             int
	Spawn                  geom.Pos
	DefaultPermissionLevel int
	StarterItem            string
	Operators              map[string]Operator
	SnapshotEveryTicks     int
}

type JoinRequest struct {
	Name          string
	ResumeToken   string
	OperatorToken string
	SessionID     string
	Out           chan []byte
	Resp          chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// LeaveRequest detaches a player's session. A request naming an older session than the one
// currently attached (the player already resumed elsewhere) is ignored.
type LeaveRequest struct {
	PlayerID  string
	SessionID string
}

type ActionEnvelope struct {
	PlayerID string
	Act      protocol.ActMsg
}

// World is a single-threaded block world. All state is owned by the goroutine running Run
// (or the caller of StepOnce); other goroutines talk to it through the channels below.
type World struct {
	cfg WorldConfig
	log zerolog.Logger

	tick atomic.Uint64

	blocks  map[geom.Pos]string
	signs   map[geom.Pos]*Sign
	players map[string]*Player
	clients map[string]*clientState

	plugins  []Plugin
	commands map[string]Command
	started  bool

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan LeaveRequest
	stop  chan struct{}
	done  chan struct{}

	nextPlayerNum atomic.Uint64

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // SET_BLOCK, SET_SIGN
	Pos    [3]int `json:"pos"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type clientState struct {
	Out       chan []byte
	SessionID string
}

// Sign is the text attached to a sign block.
type Sign struct {
	Pos         geom.Pos
	Text        string
	UpdatedTick uint64
	UpdatedBy   string
}

// Lines splits the sign text into its display lines.
func (s *Sign) Lines() []string {
	if s == nil || s.Text == "" {
		return nil
	}
	return strings.Split(s.Text, "\n")
}

func New(cfg WorldConfig, logger zerolog.Logger) (*World, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("world: empty id")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world: tick rate must be positive, got %d", cfg.TickRateHz)
	}
	w := &World{
		cfg:      cfg,
		log:      logger.With().Str("world", cfg.ID).Logger(),
		blocks:   map[geom.Pos]string{},
		signs:    map[geom.Pos]*Sign{},
		players:  map[string]*Player{},
		clients:  map[string]*clientState{},
		commands: map[string]Command{},
		inbox:    make(chan ActionEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan LeaveRequest, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	return w, nil
}

func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- LeaveRequest   { return w.leave }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Run steps the world at the configured tick rate until ctx is done or Stop is called.
func (w *World) Run(ctx context.Context) error {
	defer close(w.done)
	w.Start()

	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.leave:
			pendingLeaves = append(pendingLeaves, req)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Done is closed when Run returns. Senders on Join, Leave and Inbox select on it so they do
// not block on a stopped world.
func (w *World) Done() <-chan struct{} { return w.done }

// Start fires the server-started hooks once. Run calls it; tests driving StepOnce may call it
// directly.
func (w *World) Start() {
	if w.started {
		return
	}
	w.started = true
	for _, p := range w.plugins {
		p.HandleServerStarted(w)
	}
	w.log.Info().Str("event", "world.started").Int("plugins", len(w.plugins)).Msg("world started")
}

func (w *World) joinPlayer(req JoinRequest) JoinResponse {
	if p := w.resume(req); p != nil {
		return JoinResponse{Welcome: w.welcome(p, req.SessionID)}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "player"
	}
	num := w.nextPlayerNum.Add(1)
	id := fmt.Sprintf("P%d", num)

	level := w.cfg.DefaultPermissionLevel
	if op, ok := w.cfg.Operators[name]; ok && op.Token != "" && req.OperatorToken == op.Token {
		level = op.Level
	}

	p := &Player{
		w:               w,
		id:              id,
		name:            name,
		Pos:             w.cfg.Spawn,
		permissionLevel: level,
		mainHand:        w.cfg.StarterItem,
		ResumeToken:     newResumeToken(),
	}
	w.players[id] = p
	if req.Out != nil {
		w.clients[id] = &clientState{Out: req.Out, SessionID: req.SessionID}
	}
	w.log.Info().Str("event", "world.join").Str("player", id).Str("name", name).Int("permission_level", level).Msg("player joined")
	return JoinResponse{Welcome: w.welcome(p, req.SessionID)}
}

// resume re-attaches a known player when the request carries its resume token.
func (w *World) resume(req JoinRequest) *Player {
	token := strings.TrimSpace(req.ResumeToken)
	if token == "" {
		return nil
	}
	for _, p := range w.sortedPlayers() {
		if p.ResumeToken == token {
			if req.Out != nil {
				w.clients[p.id] = &clientState{Out: req.Out, SessionID: req.SessionID}
			}
			p.ResumeToken = newResumeToken()
			return p
		}
	}
	return nil
}

func (w *World) welcome(p *Player, sessionID string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		PlayerID:        p.id,
		ResumeToken:     p.ResumeToken,
		WorldParams: protocol.WorldParams{
			WorldID:    w.cfg.ID,
			TickRateHz: w.cfg.TickRateHz,
			Spawn:      w.cfg.Spawn.ToArray(),
		},
		Self: p.selfObs(),
	}
}

func newResumeToken() string { return "resume_" + uuid.NewString() }

func (w *World) handleLeave(req LeaveRequest) {
	p := w.players[req.PlayerID]
	if p == nil {
		return
	}
	if cl := w.clients[req.PlayerID]; cl != nil && req.SessionID != "" && cl.SessionID != req.SessionID {
		return
	}
	delete(w.clients, req.PlayerID)
	for _, pl := range w.plugins {
		pl.HandleLeave(p)
	}
	w.log.Info().Str("event", "world.leave").Str("player", p.id).Msg("player left")
}

func (w *World) step(joins []JoinRequest, leaves []LeaveRequest, actions []ActionEnvelope) {
	nowTick := w.tick.Load()

	for _, req := range leaves {
		w.handleLeave(req)
	}
	for _, req := range joins {
		resp := w.joinPlayer(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}

	// Apply actions in inbox order.
	for _, env := range actions {
		p := w.players[env.PlayerID]
		if p == nil {
			continue
		}
		env.Act.PlayerID = env.PlayerID // trust session identity
		w.applyAct(p, env.Act, nowTick)
	}

	for _, id := range w.sortedPlayerIDs() {
		p := w.players[id]
		if cl := w.clients[id]; cl != nil {
			if b, err := json.Marshal(p.buildObs(nowTick)); err == nil {
				sendLatest(cl.Out, b)
			}
		}
		// Offline players do not accumulate events.
		p.events = p.events[:0]
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	metrics.RecordTick()
	w.tick.Add(1)
}

// StepOnce advances the world by a single tick using the same ordering as Run.
func (w *World) StepOnce(joins []JoinRequest, leaves []LeaveRequest, actions []ActionEnvelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, actions)
	return tick
}

func (w *World) applyAct(p *Player, act protocol.ActMsg, nowTick uint64) {
	// Ticks are optional; when present only [now-2, now] is accepted.
	if act.Tick != 0 && (act.Tick+2 < nowTick || act.Tick > nowTick) {
		p.AddEvent(actionResult(nowTick, "ACT", false, protocol.ErrStale, "act tick out of range"))
		return
	}
	for _, inst := range act.Instants {
		w.applyInstant(p, inst, nowTick)
	}
}

func (w *World) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, id := range w.sortedPlayerIDs() {
		out = append(out, w.players[id])
	}
	return out
}

// PlayerByID is for tests and admin tooling; it must run on the world goroutine.
func (w *World) PlayerByID(id string) *Player { return w.players[id] }

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func actionResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	e := protocol.Event{
		"t":    tick,
		"type": protocol.EventActionResult,
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}

func (w *World) audit(tick uint64, actor, action string, pos geom.Pos, from, to, reason string) {
	if w.auditLogger == nil {
		return
	}
	if err := w.auditLogger.WriteAudit(AuditEntry{
		Tick:   tick,
		Actor:  actor,
		Action: action,
		Pos:    pos.ToArray(),
		From:   from,
		To:     to,
		Reason: reason,
	}); err != nil {
		w.log.Warn().Err(err).Str("event", "world.audit_failed").Msg("audit write failed")
	}
}
