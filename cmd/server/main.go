package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	addr       string
	worldID    string
	configDir  string
	dataDir    string
	tuningPath string
	snapPath   string
	loadLatest bool
	disableDB  bool
	noWatch    bool
	logLevel   string
	logConsole bool
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the block world host with the teleport sign plugin",
	Long: `Runs a single world over websocket (/v1/ws) with the teleportmod plugin loaded.

Plugin files live in <configs>/teleportmod (config.json, language.txt,
teleport_links.json) and are created with defaults on first run. Edits to
config.json and language.txt are picked up automatically; "/teleportmod reload"
does the same on demand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "http listen address")
	f.StringVar(&worldID, "world", "", "world id (default: tuning world_id)")
	f.StringVar(&configDir, "configs", "./configs", "config directory")
	f.StringVar(&dataDir, "data", "./data", "runtime data directory")
	f.StringVar(&tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	f.StringVar(&snapPath, "snapshot", "", "snapshot to load (optional)")
	f.BoolVar(&loadLatest, "load-latest-snapshot", true, "load the latest snapshot from the data dir when --snapshot is empty")
	f.BoolVar(&disableDB, "disable-db", false, "disable the sqlite index")
	f.BoolVar(&noWatch, "no-watch", false, "do not reload plugin files when they change on disk")
	f.StringVar(&logLevel, "log-level", "", "log level (default: $LOG_LEVEL, then info)")
	f.BoolVar(&logConsole, "log-console", false, "human readable logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
