package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voxelcraft.ai/signlink/internal/persistence/archive"
	persistlog "voxelcraft.ai/signlink/internal/persistence/log"
	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

func newAuditCmd() *cobra.Command {
	var (
		actor     string
		posArg    string
		sinceTick uint64
		links     bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the compressed JSONL audit log (or link event log with --links)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if links {
				evs, err := persistlog.ReadLinkEvents(worldDir())
				if err != nil {
					return err
				}
				for _, e := range evs {
					if actor != "" && e.Actor != actor {
						continue
					}
					if err := printJSON(out, e); err != nil {
						return err
					}
				}
				return nil
			}

			var (
				pos    geom.Pos
				hasPos bool
			)
			if strings.TrimSpace(posArg) != "" {
				p, err := geom.ParseKey(posArg)
				if err != nil {
					return fmt.Errorf("--pos: %w", err)
				}
				pos, hasPos = p, true
			}
			entries, err := persistlog.ReadAudit(worldDir())
			if err != nil {
				return err
			}
			for _, a := range entries {
				if a.Tick < sinceTick {
					continue
				}
				if actor != "" && a.Actor != actor {
					continue
				}
				if hasPos && a.Pos != pos.ToArray() {
					continue
				}
				if err := printJSON(out, a); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "player id filter")
	cmd.Flags().StringVar(&posArg, "pos", "", "block position filter x,y,z")
	cmd.Flags().Uint64Var(&sinceTick, "since-tick", 0, "skip entries before this tick")
	cmd.Flags().BoolVar(&links, "links", false, "read link events instead of block audits")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Summarise a world snapshot (default: latest)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := strings.TrimSpace(path)
			if p == "" {
				p = snapshot.Latest(filepath.Join(worldDir(), "snapshots"))
			}
			if p == "" {
				return fmt.Errorf("no snapshot found under %s", worldDir())
			}
			snap, err := snapshot.ReadSnapshot(p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"path":     p,
				"world_id": snap.Header.WorldID,
				"tick":     snap.Header.Tick,
				"blocks":   len(snap.Blocks),
				"signs":    len(snap.Signs),
				"players":  len(snap.Players),
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "snapshot file")
	return cmd
}

func newArchivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List snapshot and link file bundles written at shutdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metas, err := archive.List(worldDir())
			if err != nil {
				return err
			}
			for _, m := range metas {
				if err := printJSON(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
