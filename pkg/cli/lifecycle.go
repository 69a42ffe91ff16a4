package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Run one lifecycle pass over all personas",
		Long: "Run one wake-based lifecycle pass: purge stale short-term memories, promote\n" +
			"proven ones to long-term, archive cold long-term memories, then enforce capacity.",
		Run: runLifecycle,
	}

	cmd.Flags().Int64P("wake", "w", 0, "Current wake number (required)")
	cmd.MarkFlagRequired("wake")

	RootCmd.AddCommand(cmd)
}

func runLifecycle(cmd *cobra.Command, args []string) {
	wake, _ := cmd.Flags().GetInt64("wake")

	cfg := loadConfig()
	reg := openRegistry(cfg)

	stats, err := memory.NewLifecycle(reg, cfg.Lifecycle).Run(wake)
	if err != nil {
		exitErr("lifecycle", err)
	}

	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
}
