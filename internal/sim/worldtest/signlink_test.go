package worldtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/signlink"
	"voxelcraft.ai/signlink/internal/sim/geom"
	world "voxelcraft.ai/signlink/internal/sim/world"
)

type linkFixture struct {
	h       *Harness
	plugin  *signlink.Plugin
	op      string
	visitor string
	a, b    geom.Pos
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	w := NewWorld(t, testConfig())
	p := signlink.New(filepath.Join(t.TempDir(), "teleportmod"), signlink.WithLogger(zerolog.Nop()))
	if err := p.Load(); err != nil {
		t.Fatalf("plugin load: %v", err)
	}
	w.RegisterPlugin(p)
	w.RegisterCommand(p.Command())

	h := NewHarnessWithWorld(t, w, "")
	f := &linkFixture{
		h:       h,
		plugin:  p,
		op:      h.JoinWithToken("alice", opToken),
		visitor: h.Join("bob"),
		a:       geom.Pos{X: 2, Y: 64, Z: 0},
		b:       geom.Pos{X: 4, Y: 64, Z: 3},
	}
	h.PlaceSign(f.a, "North Gate")
	h.PlaceSign(f.b, "")
	return f
}

func use(id string, pos geom.Pos) protocol.InstantReq {
	return protocol.InstantReq{ID: id, Type: protocol.InstantUseBlock, Pos: pos.ToArray()}
}

func (f *linkFixture) link(t *testing.T) {
	t.Helper()
	obs := f.h.StepFor(f.op, use("sel_a", f.a))
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "Sign A selected!" {
		t.Fatalf("select A: action bar = %v", bar)
	}
	obs = f.h.StepFor(f.op, use("sel_b", f.b))
	if code := actionResultCode(obs, "sel_b"); code != "" {
		t.Fatalf("select B: code=%q", code)
	}
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "Teleport link set between A and B!" {
		t.Fatalf("select B: action bar = %v", bar)
	}
	if obs.Self.Pos != testConfig().Spawn.ToArray() || hasEvent(obs, protocol.EventTeleport) {
		t.Fatalf("operator should not teleport while linking")
	}
}

func TestSignLink_StartBroadcastsLoaded(t *testing.T) {
	f := newLinkFixture(t)
	f.h.Start()
	for _, id := range []string{f.op, f.visitor} {
		got := notices(f.h.LastObsFor(id), protocol.ChannelChat)
		if len(got) != 1 || got[0] != "[Teleport-mod] Loaded" {
			t.Fatalf("%s chat = %v", id, got)
		}
	}
}

func TestSignLink_LinkAndTeleport(t *testing.T) {
	f := newLinkFixture(t)
	f.link(t)

	obs := f.h.StepFor(f.visitor, use("go", f.a))
	if code := actionResultCode(obs, "go"); code != "" {
		t.Fatalf("teleport: code=%q events=%v", code, obs.Events)
	}
	if obs.Self.Pos != f.b.ToArray() {
		t.Fatalf("visitor at %v, want %v", obs.Self.Pos, f.b.ToArray())
	}
	if !hasEvent(obs, protocol.EventTeleport) {
		t.Fatalf("missing TELEPORT event: %v", obs.Events)
	}
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "Teleported to North Gate" {
		t.Fatalf("action bar = %v", bar)
	}

	obs = f.h.StepFor(f.visitor, use("back", f.b))
	if obs.Self.Pos != f.a.ToArray() {
		t.Fatalf("visitor at %v, want %v", obs.Self.Pos, f.a.ToArray())
	}
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "Teleported to Unknown location" {
		t.Fatalf("action bar = %v", bar)
	}
}

func TestSignLink_BreakNeedsPermission(t *testing.T) {
	f := newLinkFixture(t)
	f.link(t)

	obs := f.h.StepFor(f.visitor, protocol.InstantReq{ID: "brk", Type: protocol.InstantBreakBlock, Pos: f.b.ToArray()})
	if code := actionResultCode(obs, "brk"); code != protocol.ErrNoPermission {
		t.Fatalf("visitor break: code=%q", code)
	}
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "You don't have permission to destroy this sign!" {
		t.Fatalf("action bar = %v", bar)
	}
	if b, ok := blockUpdateAt(obs, f.b.ToArray()); !ok || b != world.BlockSign {
		t.Fatalf("block not resent: %q %v", b, ok)
	}
	if got := f.h.W.BlockAt(f.b); got != world.BlockSign {
		t.Fatalf("sign was broken: %q", got)
	}

	f.h.StepFor(f.op, protocol.InstantReq{ID: "hold", Type: protocol.InstantHold, Item: "STONE"})
	obs = f.h.StepFor(f.op, protocol.InstantReq{ID: "brk2", Type: protocol.InstantBreakBlock, Pos: f.a.ToArray()})
	if code := actionResultCode(obs, "brk2"); code != "" {
		t.Fatalf("operator break: code=%q", code)
	}
	if len(f.plugin.Links()) != 0 {
		t.Fatalf("links after break: %v", f.plugin.Links())
	}
	if b, ok := blockUpdateAt(f.h.LastObsFor(f.visitor), f.a.ToArray()); !ok || b != world.BlockAir {
		t.Fatalf("visitor did not see the break: %q %v", b, ok)
	}

	obs = f.h.StepFor(f.visitor, use("dead", f.b))
	if obs.Self.Pos == f.a.ToArray() {
		t.Fatalf("teleported through a removed link")
	}
}

func TestSignLink_BrokenPartnerRemovesLink(t *testing.T) {
	f := newLinkFixture(t)
	f.link(t)
	f.h.W.SetBlock(f.b, world.BlockAir)

	obs := f.h.StepFor(f.visitor, use("go", f.a))
	if code := actionResultCode(obs, "go"); code != protocol.ErrBlocked {
		t.Fatalf("code=%q", code)
	}
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "The linked sign is gone; link removed." {
		t.Fatalf("action bar = %v", bar)
	}
	if len(f.plugin.Links()) != 0 {
		t.Fatalf("link survived: %v", f.plugin.Links())
	}
}

func TestSignLink_ReloadCommand(t *testing.T) {
	f := newLinkFixture(t)

	obs := f.h.StepFor(f.visitor, protocol.InstantReq{ID: "rl", Type: protocol.InstantCommand, Text: "/teleportmod reload"})
	if code := actionResultCode(obs, "rl"); code != protocol.ErrNoPermission {
		t.Fatalf("visitor reload: code=%q", code)
	}

	if err := os.WriteFile(f.plugin.ConfigPath(), []byte(`{"permissionLevel": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	obs = f.h.StepFor(f.op, protocol.InstantReq{ID: "rl2", Type: protocol.InstantCommand, Text: "/teleportmod reload"})
	if code := actionResultCode(obs, "rl2"); code != "" {
		t.Fatalf("operator reload: code=%q", code)
	}
	if chat := notices(obs, protocol.ChannelChat); len(chat) != 1 || chat[0] != "[TeleportMod] Configuration and language files reloaded." {
		t.Fatalf("chat = %v", chat)
	}

	// Level 0 now suffices, so bob's obsidian selects signs.
	obs = f.h.StepFor(f.visitor, use("sel", f.a))
	if bar := notices(obs, protocol.ChannelActionBar); len(bar) != 1 || bar[0] != "Sign A selected!" {
		t.Fatalf("action bar = %v", bar)
	}

	obs = f.h.StepFor(f.op, protocol.InstantReq{ID: "rl3", Type: protocol.InstantCommand, Text: "/teleportmod restart"})
	if code := actionResultCode(obs, "rl3"); code != protocol.ErrBadRequest {
		t.Fatalf("unknown subcommand: code=%q", code)
	}
	if chat := notices(obs, protocol.ChannelChat); len(chat) != 1 || chat[0] != "Usage: teleportmod reload" {
		t.Fatalf("chat = %v", chat)
	}
}

func TestSignLink_LeaveDropsSelection(t *testing.T) {
	f := newLinkFixture(t)
	f.h.StepFor(f.op, use("sel_a", f.a))
	if _, ok := f.plugin.Selected(f.op); !ok {
		t.Fatalf("expected pending selection")
	}
	f.h.Leave(f.op)
	if _, ok := f.plugin.Selected(f.op); ok {
		t.Fatalf("selection survived leave")
	}
}
