package signlink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcraft.ai/signlink/internal/sim/geom"
	"voxelcraft.ai/signlink/internal/sim/world"
)

type fakeActor struct {
	id       string
	level    int
	hand     string
	pos      geom.Pos
	bar      []string
	chat     []string
	teleTo   []geom.Pos
	resentTo []geom.Pos
}

func (a *fakeActor) ID() string                    { return a.id }
func (a *fakeActor) Name() string                  { return "name-" + a.id }
func (a *fakeActor) PermissionLevel() int          { return a.level }
func (a *fakeActor) HasPermissionLevel(l int) bool { return a.level >= l }
func (a *fakeActor) MainHandItem() string          { return a.hand }
func (a *fakeActor) Position() geom.Pos            { return a.pos }
func (a *fakeActor) SendActionBar(text string)     { a.bar = append(a.bar, text) }
func (a *fakeActor) SendMessage(text string)       { a.chat = append(a.chat, text) }
func (a *fakeActor) Teleport(to geom.Pos) {
	a.pos = to
	a.teleTo = append(a.teleTo, to)
}

func (a *fakeActor) lastBar() string {
	if len(a.bar) == 0 {
		return ""
	}
	return a.bar[len(a.bar)-1]
}

type fakeLevel struct {
	blocks    map[geom.Pos]string
	text      map[geom.Pos]string
	broadcast []string
}

func newFakeLevel() *fakeLevel {
	return &fakeLevel{blocks: map[geom.Pos]string{}, text: map[geom.Pos]string{}}
}

func (l *fakeLevel) BlockAt(pos geom.Pos) string {
	if b, ok := l.blocks[pos]; ok {
		return b
	}
	return world.BlockAir
}

func (l *fakeLevel) SignText(pos geom.Pos, line int) (string, bool) {
	t, ok := l.text[pos]
	if !ok || line != 0 {
		return "", false
	}
	return t, true
}

func (l *fakeLevel) ResendBlock(a world.Actor, pos geom.Pos) {
	fa := a.(*fakeActor)
	fa.resentTo = append(fa.resentTo, pos)
}

func (l *fakeLevel) Broadcast(text string) { l.broadcast = append(l.broadcast, text) }

type memSink struct{ events []Event }

func (s *memSink) WriteLinkEvent(e Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) kinds() []string {
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPlugin(t *testing.T) (*Plugin, *memSink) {
	t.Helper()
	sink := &memSink{}
	p := New(filepath.Join(t.TempDir(), "teleportmod"),
		WithLogger(zerolog.Nop()),
		WithEventSink(sink),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, p.Load())
	return p, sink
}

func signLevel(positions ...geom.Pos) *fakeLevel {
	l := newFakeLevel()
	for _, pos := range positions {
		l.blocks[pos] = world.BlockSign
	}
	return l
}

func admin(id string) *fakeActor   { return &fakeActor{id: id, level: 4, hand: "OBSIDIAN"} }
func visitor(id string) *fakeActor { return &fakeActor{id: id, level: 0, hand: "OBSIDIAN"} }

func linkPair(t *testing.T, p *Plugin, lvl *fakeLevel, a, b geom.Pos) {
	t.Helper()
	op := admin("op-setup")
	require.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, a))
	require.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, b))
	require.Equal(t, "Teleport link set between A and B!", op.lastBar())
}

func TestPlugin_LoadWritesDefaultFiles(t *testing.T) {
	p, _ := newTestPlugin(t)

	b, err := os.ReadFile(p.ConfigPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{"permissionLevel": 4}`, string(b))

	b, err = os.ReadFile(p.LanguagePath())
	require.NoError(t, err)
	assert.Contains(t, string(b), "sign_a_selected=Sign A selected!\n")
	assert.Contains(t, string(b), "teleported_to=Teleported to\n")

	b, err = os.ReadFile(p.LinksPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestPlugin_AdminLinksTwoSigns(t *testing.T) {
	p, sink := newTestPlugin(t)
	lvl := signLevel(posA, posB)
	op := admin("P1")

	assert.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, posA))
	assert.Equal(t, "Sign A selected!", op.lastBar())
	sel, ok := p.Selected("P1")
	require.True(t, ok)
	assert.Equal(t, posA, sel)

	assert.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, posB))
	assert.Equal(t, "Teleport link set between A and B!", op.lastBar())
	_, ok = p.Selected("P1")
	assert.False(t, ok)
	assert.Empty(t, op.teleTo)

	assert.Equal(t, []Pair{{A: posB, B: posA}}, p.Links())
	onDisk, err := ReadLinksFile(p.LinksPath())
	require.NoError(t, err)
	got, ok := onDisk.Partner(posA)
	require.True(t, ok)
	assert.Equal(t, posB, got)
	got, ok = onDisk.Partner(posB)
	require.True(t, ok)
	assert.Equal(t, posA, got)

	require.Len(t, sink.events, 1)
	assert.Equal(t, Event{
		Time: fixedNow, Kind: EventLinkCreated, Actor: "P1", ActorName: "name-P1",
		A: posA.ToArray(), B: posB.ToArray(),
	}, sink.events[0])
}

func TestPlugin_SelectionRejections(t *testing.T) {
	t.Run("already linked", func(t *testing.T) {
		p, _ := newTestPlugin(t)
		lvl := signLevel(posA, posB, posC)
		linkPair(t, p, lvl, posA, posB)

		op := admin("P1")
		require.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, posC))
		assert.Equal(t, world.ResultFail, p.HandleUseBlock(op, lvl, posB))
		assert.Equal(t, "Error: One of the signs is already linked!", op.lastBar())
		_, pending := p.Selected("P1")
		assert.False(t, pending)
		assert.Len(t, p.Links(), 1)
	})
	t.Run("same sign", func(t *testing.T) {
		p, _ := newTestPlugin(t)
		lvl := signLevel(posA)
		op := admin("P1")

		require.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, posA))
		assert.Equal(t, world.ResultFail, p.HandleUseBlock(op, lvl, posA))
		assert.Equal(t, "Error: A sign cannot be linked to itself!", op.lastBar())
		assert.Empty(t, p.Links())
	})
}

func TestPlugin_SelectionsArePerPlayer(t *testing.T) {
	p, _ := newTestPlugin(t)
	lvl := signLevel(posA, posB, posC)
	alice, bob := admin("P1"), admin("P2")

	require.Equal(t, world.ResultSuccess, p.HandleUseBlock(alice, lvl, posA))
	require.Equal(t, world.ResultSuccess, p.HandleUseBlock(bob, lvl, posC))
	assert.Equal(t, "Sign A selected!", bob.lastBar())

	p.HandleLeave(bob)
	_, ok := p.Selected("P2")
	assert.False(t, ok)

	require.Equal(t, world.ResultSuccess, p.HandleUseBlock(alice, lvl, posB))
	assert.Equal(t, []Pair{{A: posB, B: posA}}, p.Links())
}

func TestPlugin_UseLinkedSignTeleports(t *testing.T) {
	p, sink := newTestPlugin(t)
	lvl := signLevel(posA, posB)
	lvl.text[posA] = "Market"
	linkPair(t, p, lvl, posA, posB)

	v := visitor("P7")
	assert.Equal(t, world.ResultSuccess, p.HandleUseBlock(v, lvl, posA))
	assert.Equal(t, []geom.Pos{posB}, v.teleTo)
	assert.Equal(t, "Teleported to Market", v.lastBar())

	assert.Equal(t, world.ResultSuccess, p.HandleUseBlock(v, lvl, posB))
	assert.Equal(t, posA, v.pos)
	assert.Equal(t, "Teleported to Unknown location", v.lastBar())

	assert.Equal(t, []string{EventLinkCreated, EventTeleport, EventTeleport}, sink.kinds())
}

func TestPlugin_AdminWithoutSelectionItemTeleports(t *testing.T) {
	p, _ := newTestPlugin(t)
	lvl := signLevel(posA, posB)
	linkPair(t, p, lvl, posA, posB)

	op := admin("P1")
	op.hand = "STONE"
	assert.Equal(t, world.ResultSuccess, p.HandleUseBlock(op, lvl, posA))
	assert.Equal(t, []geom.Pos{posB}, op.teleTo)
	_, pending := p.Selected("P1")
	assert.False(t, pending)
}

func TestPlugin_PassesOnOtherBlocks(t *testing.T) {
	p, _ := newTestPlugin(t)
	lvl := signLevel(posA)
	lvl.blocks[posB] = "STONE"

	v := visitor("P1")
	assert.Equal(t, world.ResultPass, p.HandleUseBlock(v, lvl, posA))
	assert.Equal(t, world.ResultPass, p.HandleUseBlock(v, lvl, posB))
	assert.Equal(t, world.ResultPass, p.HandleUseBlock(admin("P2"), lvl, posB))
	assert.Empty(t, v.bar)
}

func TestPlugin_BrokenPartnerIsCleanedUp(t *testing.T) {
	p, sink := newTestPlugin(t)
	lvl := signLevel(posA, posB)
	linkPair(t, p, lvl, posA, posB)
	delete(lvl.blocks, posB)

	v := visitor("P1")
	assert.Equal(t, world.ResultFail, p.HandleUseBlock(v, lvl, posA))
	assert.Equal(t, "The linked sign is gone; link removed.", v.lastBar())
	assert.Empty(t, v.teleTo)
	assert.Empty(t, p.Links())

	onDisk, err := ReadLinksFile(p.LinksPath())
	require.NoError(t, err)
	assert.Equal(t, 0, onDisk.Len())
	assert.Equal(t, "partner_missing", sink.events[len(sink.events)-1].Reason)
}

func TestPlugin_BreakLinkedSign(t *testing.T) {
	p, sink := newTestPlugin(t)
	lvl := signLevel(posA, posB, posC)
	linkPair(t, p, lvl, posA, posB)

	v := visitor("P1")
	assert.False(t, p.HandleBreakBlock(v, lvl, posB))
	assert.Equal(t, "You don't have permission to destroy this sign!", v.lastBar())
	assert.Equal(t, []geom.Pos{posB}, v.resentTo)
	assert.Len(t, p.Links(), 1)

	assert.True(t, p.HandleBreakBlock(v, lvl, posC), "unlinked signs break freely")

	op := admin("P2")
	op.hand = ""
	assert.True(t, p.HandleBreakBlock(op, lvl, posB))
	assert.Empty(t, p.Links())

	onDisk, err := ReadLinksFile(p.LinksPath())
	require.NoError(t, err)
	assert.False(t, onDisk.Linked(posA))
	assert.False(t, onDisk.Linked(posB))

	assert.Equal(t, []string{EventLinkCreated, EventDenied, EventLinkRemoved}, sink.kinds())
}

func TestPlugin_ServerStartedBroadcasts(t *testing.T) {
	p, _ := newTestPlugin(t)
	lvl := newFakeLevel()
	p.HandleServerStarted(lvl)
	assert.Equal(t, []string{"[Teleport-mod] Loaded"}, lvl.broadcast)
}

func TestPlugin_ReloadCommand(t *testing.T) {
	p, _ := newTestPlugin(t)
	cmd := p.Command()
	assert.Equal(t, "teleportmod", cmd.Name)

	op := admin("P1")
	v := visitor("P2")
	v.level = 2
	assert.True(t, cmd.Requires(op))
	assert.False(t, cmd.Requires(v))

	require.NoError(t, os.WriteFile(p.ConfigPath(), []byte(`{"permissionLevel": 2}`), 0o644))
	require.NoError(t, os.WriteFile(p.LanguagePath(), []byte("sign_a_selected = Erstes Schild gewählt\n"), 0o644))

	reply, err := cmd.Run(op, []string{"reload"})
	require.NoError(t, err)
	assert.Equal(t, "[TeleportMod] Configuration and language files reloaded.", reply)
	assert.Equal(t, 2, p.Config().PermissionLevel)
	assert.True(t, cmd.Requires(v))

	lvl := signLevel(posA)
	require.Equal(t, world.ResultSuccess, p.HandleUseBlock(v, lvl, posA))
	assert.Equal(t, "Erstes Schild gewählt", v.lastBar())

	_, err = cmd.Run(op, []string{"restart"})
	assert.ErrorIs(t, err, world.ErrUsage)
	_, err = cmd.Run(op, nil)
	assert.ErrorIs(t, err, world.ErrUsage)
}

func TestPlugin_ReloadKeepsConfigOnError(t *testing.T) {
	p, _ := newTestPlugin(t)
	require.NoError(t, os.WriteFile(p.ConfigPath(), []byte(`{"permissionLevel": "high"}`), 0o644))

	assert.Error(t, p.Reload())
	assert.Equal(t, 4, p.Config().PermissionLevel)

	reply, err := p.Command().Run(admin("P1"), []string{"reload"})
	require.NoError(t, err)
	assert.Equal(t, "[TeleportMod] Configuration and language files reloaded.", reply)
}

func TestPlugin_LoadRepairsMalformedLinks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "teleportmod")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, LinksFile), []byte(`{"1,64,1": 5}`), 0o644))

	p := New(dir)
	require.NoError(t, p.Load())
	assert.Empty(t, p.Links())

	b, err := os.ReadFile(p.LinksPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}
