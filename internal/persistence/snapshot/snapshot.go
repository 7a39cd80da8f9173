package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1
	suffix  = ".snap.zst"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate int    `json:"tick_rate_hz"`
	Spawn    [3]int `json:"spawn"`

	Blocks  []BlockV1  `json:"blocks"`
	Signs   []SignV1   `json:"signs,omitempty"`
	Players []PlayerV1 `json:"players"`

	Counters CountersV1 `json:"counters"`
}

type BlockV1 struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

type SignV1 struct {
	Pos         [3]int `json:"pos"`
	Text        string `json:"text"`
	UpdatedTick uint64 `json:"updated_tick"`
	UpdatedBy   string `json:"updated_by"`
}

type PlayerV1 struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Pos             [3]int `json:"pos"`
	Yaw             int    `json:"yaw"`
	Pitch           int    `json:"pitch"`
	PermissionLevel int    `json:"permission_level"`
	MainHand        string `json:"main_hand,omitempty"`
	ResumeToken     string `json:"resume_token,omitempty"`
}

type CountersV1 struct {
	NextPlayer uint64 `json:"next_player"`
}

// FileName is the snapshot file name for tick inside a snapshots directory.
func FileName(tick uint64) string {
	return strconv.FormatUint(tick, 10) + suffix
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded snapshot, all inside one
// zstd stream. The file is replaced atomically.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	enc, err := zstd.NewWriter(pf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Latest returns the path of the highest-tick snapshot in dir, or "" if there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
