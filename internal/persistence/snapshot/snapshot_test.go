package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:   Header{Version: Version, WorldID: "overworld", Tick: tick},
		TickRate: 5,
		Spawn:    [3]int{0, 64, 0},
		Blocks: []BlockV1{
			{Pos: [3]int{1, 64, 1}, Block: "SIGN"},
			{Pos: [3]int{2, 64, 1}, Block: "STONE"},
		},
		Signs: []SignV1{{Pos: [3]int{1, 64, 1}, Text: "Spawn\nwelcome", UpdatedTick: 3, UpdatedBy: "P1"}},
		Players: []PlayerV1{{
			ID: "P1", Name: "alice", Pos: [3]int{1, 64, 2}, Yaw: 90, PermissionLevel: 4,
			MainHand: "OBSIDIAN", ResumeToken: "resume_x",
		}},
		Counters: CountersV1{NextPlayer: 1},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", FileName(40))
	want := sampleSnapshot(40)

	require.NoError(t, WriteSnapshot(path, want))
	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSnapshot_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(1))
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))

	_, err := ReadSnapshot(path)
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", Latest(dir))
	assert.Equal(t, "", Latest(filepath.Join(dir, "missing")))

	for _, tick := range []uint64{9, 120, 30} {
		require.NoError(t, WriteSnapshot(filepath.Join(dir, FileName(tick)), sampleSnapshot(tick)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.snap.zst"), []byte("x"), 0o644))

	assert.Equal(t, filepath.Join(dir, "120.snap.zst"), Latest(dir))
}
