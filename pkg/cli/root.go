// Package cli implements the engram CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/memory"
)

var (
	configPath string
	dataDir    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Tiered memory and context compaction for long-running agents",
	Long: "engram manages tiered persona memories (short-term, long-term, archive),\n" +
		"runs wake-based lifecycle passes over them, and compacts working contexts\n" +
		"that outgrow their token budget.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: $ENGRAM_CONFIG or ~/.engram/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "", "Data directory (overrides config)")
}

func loadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = os.Getenv("ENGRAM_CONFIG")
	}
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".engram", "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		exitErr("load config", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg
}

func openRegistry(cfg *config.Config) *memory.Registry {
	reg, err := memory.NewRegistry(cfg)
	if err != nil {
		exitErr("open memory stores", err)
	}
	return reg
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
