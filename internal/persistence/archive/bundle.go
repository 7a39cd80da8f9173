package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"

	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/signlink"
)

const metaFile = "meta.json"

type BundleMeta struct {
	WorldID   string `json:"world_id"`
	Tick      uint64 `json:"tick"`
	Snapshot  string `json:"snapshot"`
	LinksFile string `json:"links_file"`
	Links     int    `json:"links"`
	CreatedAt string `json:"created_at"`
}

// Bundle copies a snapshot and the link file that was current when it was taken into
// `worldDir/archives/tick_<NNNNNNNNNN>/`, so the two can be restored together.
// A missing link file is recorded as zero links.
func Bundle(worldDir, snapshotPath, linksPath string, snap snapshot.SnapshotV1) (string, error) {
	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%010d", snap.Header.Tick))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := copyFile(snapshotPath, filepath.Join(dir, filepath.Base(snapshotPath))); err != nil {
		return "", fmt.Errorf("copy snapshot: %w", err)
	}

	meta := BundleMeta{
		WorldID:   snap.Header.WorldID,
		Tick:      snap.Header.Tick,
		Snapshot:  filepath.Base(snapshotPath),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if t, err := signlink.ReadLinksFile(linksPath); err == nil {
		meta.Links = t.Len()
		meta.LinksFile = filepath.Base(linksPath)
		if err := copyFile(linksPath, filepath.Join(dir, meta.LinksFile)); err != nil {
			return "", fmt.Errorf("copy links: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read links: %w", err)
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := renameio.WriteFile(filepath.Join(dir, metaFile), append(b, '\n'), 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

// List returns the metadata of every bundle under worldDir, oldest first.
func List(worldDir string) ([]BundleMeta, error) {
	entries, err := os.ReadDir(filepath.Join(worldDir, "archives"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []BundleMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(worldDir, "archives", e.Name(), metaFile))
		if err != nil {
			continue
		}
		var m BundleMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
