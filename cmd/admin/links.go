package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"voxelcraft.ai/signlink/internal/signlink"
)

// errProblems makes `links check` exit non-zero after printing its findings.
var errProblems = errors.New("link file has problems")

func linksPath() string {
	return filepath.Join(configDir, signlink.CommandName, signlink.LinksFile)
}

func newLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Read teleport_links.json without modifying it",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print each link once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := signlink.ReadLinksFile(linksPath())
			if err != nil {
				return err
			}
			// List what the server would load.
			t.Repair()
			for _, p := range t.Pairs() {
				if err := printJSON(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the file and report entries the server would drop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			t, err := signlink.ReadLinksFile(linksPath())
			if err != nil {
				if errors.Is(err, signlink.ErrMalformed) {
					fmt.Fprintf(out, "malformed: %v\n", err)
					return errProblems
				}
				return err
			}
			dropped := t.Repair()
			for _, k := range dropped {
				fmt.Fprintf(out, "unpaired: %s\n", k)
			}
			fmt.Fprintf(out, "links: %d\n", t.Len())
			if len(dropped) > 0 {
				return errProblems
			}
			return nil
		},
	})
	return cmd
}
