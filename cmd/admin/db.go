package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voxelcraft.ai/signlink/internal/persistence/indexdb"
	"voxelcraft.ai/signlink/internal/sim/geom"
)

func newDBCmd() *cobra.Command {
	var dbPath string
	open := func() (*indexdb.SQLiteIndex, error) {
		path := strings.TrimSpace(dbPath)
		if path == "" {
			path = filepath.Join(worldDir(), "index", "signlink.sqlite")
		}
		return indexdb.OpenReadOnly(path)
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Query the sqlite index",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite db path (default: <data>/worlds/<world>/index/signlink.sqlite)")

	cmd.AddCommand(&cobra.Command{
		Use:   "links",
		Short: "Links as last recorded by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := open()
			if err != nil {
				return err
			}
			defer idx.Close()
			rows, err := idx.ListLinks(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"a":          r.A.ToArray(),
					"b":          r.B.ToArray(),
					"created_at": r.CreatedAt,
					"created_by": r.CreatedBy,
				}); err != nil {
					return err
				}
			}
			return nil
		},
	})

	var filter indexdb.EventFilter
	events := &cobra.Command{
		Use:   "events",
		Short: "Link events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := open()
			if err != nil {
				return err
			}
			defer idx.Close()
			evs, err := idx.ListEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, e := range evs {
				if err := printJSON(cmd.OutOrStdout(), e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	events.Flags().StringVar(&filter.Kind, "kind", "", "LINK_CREATED, LINK_REMOVED, TELEPORT or DENIED")
	events.Flags().StringVar(&filter.Actor, "actor", "", "player id")
	events.Flags().IntVar(&filter.Limit, "limit", 20, "result limit")
	cmd.AddCommand(events)

	var posArg string
	history := &cobra.Command{
		Use:   "history",
		Short: "Audit history of one block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pos, err := geom.ParseKey(posArg)
			if err != nil {
				return err
			}
			idx, err := open()
			if err != nil {
				return err
			}
			defer idx.Close()
			entries, err := idx.AuditsAt(cmd.Context(), pos)
			if err != nil {
				return err
			}
			for _, a := range entries {
				if err := printJSON(cmd.OutOrStdout(), a); err != nil {
					return err
				}
			}
			return nil
		},
	}
	history.Flags().StringVar(&posArg, "pos", "", "block position x,y,z")
	_ = history.MarkFlagRequired("pos")
	cmd.AddCommand(history)

	cmd.AddCommand(&cobra.Command{
		Use:   "snapshots",
		Short: "Recorded snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := open()
			if err != nil {
				return err
			}
			defer idx.Close()
			rows, err := idx.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := printJSON(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return cmd
}
