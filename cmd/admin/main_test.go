package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcraft.ai/signlink/internal/persistence/indexdb"
	persistlog "voxelcraft.ai/signlink/internal/persistence/log"
	"voxelcraft.ai/signlink/internal/signlink"
	"voxelcraft.ai/signlink/internal/sim/world"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeLinks(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, signlink.CommandName, signlink.LinksFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dir
}

const goodLinks = `{
  "1,64,1": {"x": 5, "y": 64, "z": 5},
  "5,64,5": {"x": 1, "y": 64, "z": 1}
}`

func TestLinksList(t *testing.T) {
	dir := writeLinks(t, goodLinks)
	out, err := run(t, "links", "list", "--configs", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var p signlink.Pair
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &p))
	assert.Equal(t, 1, p.A.X)
	assert.Equal(t, 5, p.B.X)
}

func TestLinksCheck(t *testing.T) {
	out, err := run(t, "links", "check", "--configs", writeLinks(t, goodLinks))
	require.NoError(t, err)
	assert.Contains(t, out, "links: 1")

	out, err = run(t, "links", "check", "--configs", writeLinks(t, `{"1,64,1": {"x": 5, "y": 64, "z": 5}}`))
	assert.ErrorIs(t, err, errProblems)
	assert.Contains(t, out, "unpaired: 1,64,1")

	out, err = run(t, "links", "check", "--configs", writeLinks(t, `{"1,64,1": [1,2,3]}`))
	assert.ErrorIs(t, err, errProblems)
	assert.Contains(t, out, "malformed")
}

func TestLinksCheck_DoesNotRewrite(t *testing.T) {
	body := `{"1,64,1": {"x": 5, "y": 64, "z": 5}}`
	dir := writeLinks(t, body)
	_, _ = run(t, "links", "check", "--configs", dir)
	got, err := os.ReadFile(filepath.Join(dir, signlink.CommandName, signlink.LinksFile))
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestAudit(t *testing.T) {
	data := t.TempDir()
	wd := filepath.Join(data, "worlds", "overworld")
	al := persistlog.NewAuditLogger(wd)
	require.NoError(t, al.WriteAudit(world.AuditEntry{Tick: 3, Actor: "P1", Action: "SET_BLOCK", Pos: [3]int{1, 64, 1}, From: "AIR", To: "SIGN"}))
	require.NoError(t, al.WriteAudit(world.AuditEntry{Tick: 8, Actor: "P2", Action: "SET_BLOCK", Pos: [3]int{2, 64, 2}, From: "AIR", To: "STONE"}))
	require.NoError(t, al.Close())
	ll := persistlog.NewLinkEventLogger(wd)
	require.NoError(t, ll.WriteLinkEvent(signlink.Event{Time: time.Now(), Kind: signlink.EventTeleport, Actor: "P2"}))
	require.NoError(t, ll.Close())

	out, err := run(t, "audit", "--data", data, "--pos", "2,64,2")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"STONE"`)

	out, err = run(t, "audit", "--data", data, "--since-tick", "4", "--actor", "P1")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = run(t, "audit", "--data", data, "--links")
	require.NoError(t, err)
	assert.Contains(t, out, signlink.EventTeleport)

	_, err = run(t, "audit", "--data", data, "--pos", "nope")
	assert.Error(t, err)
}

func TestDB(t *testing.T) {
	data := t.TempDir()
	path := filepath.Join(data, "worlds", "overworld", "index", "signlink.sqlite")
	idx, err := indexdb.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.WriteLinkEvent(signlink.Event{Time: time.Now(), Kind: signlink.EventLinkCreated, Actor: "P1", A: [3]int{1, 64, 1}, B: [3]int{5, 64, 5}}))
	require.NoError(t, idx.WriteLinkEvent(signlink.Event{Time: time.Now(), Kind: signlink.EventDenied, Actor: "P9", A: [3]int{1, 64, 1}}))
	require.NoError(t, idx.WriteAudit(world.AuditEntry{Tick: 1, Actor: "P1", Action: "SET_SIGN", Pos: [3]int{1, 64, 1}, To: "Home"}))
	require.NoError(t, idx.Close())

	out, err := run(t, "db", "links", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, `"created_by":"P1"`)

	out, err = run(t, "db", "events", "--data", data, "--kind", "denied")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"P9"`)

	out, err = run(t, "db", "history", "--db", path, "--pos", "1,64,1")
	require.NoError(t, err)
	assert.Contains(t, out, "Home")

	_, err = run(t, "db", "links", "--data", t.TempDir())
	assert.Error(t, err)
}
