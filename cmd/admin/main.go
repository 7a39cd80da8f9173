package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	configDir string
	dataDir   string
	worldID   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Inspect teleport links, the sqlite index and audit logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&configDir, "configs", "./configs", "config directory")
	pf.StringVar(&dataDir, "data", "./data", "runtime data directory")
	pf.StringVar(&worldID, "world", "overworld", "world id")

	root.AddCommand(newLinksCmd(), newDBCmd(), newAuditCmd(), newSnapshotCmd(), newArchivesCmd())
	return root
}

func worldDir() string { return filepath.Join(dataDir, "worlds", worldID) }

// printJSON writes one compact JSON document per line.
func printJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
