package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/memory"
)

func init() {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and restore archived memories",
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Scan the archive for matching records",
		Args:  cobra.MinimumNArgs(1),
		Run:   runArchiveSearch,
	}
	searchCmd.Flags().IntP("max", "m", 20, "Maximum records to return")

	restoreCmd := &cobra.Command{
		Use:   "restore [entry-id]",
		Short: "Restore an archived memory into a persona's long-term tier",
		Args:  cobra.ExactArgs(1),
		Run:   runArchiveRestore,
	}
	restoreCmd.Flags().StringP("persona", "p", "default", "Persona name")
	restoreCmd.Flags().Int64P("wake", "w", 0, "Current wake number (required)")
	restoreCmd.MarkFlagRequired("wake")

	archiveCmd.AddCommand(searchCmd, restoreCmd)
	RootCmd.AddCommand(archiveCmd)
}

func runArchiveSearch(cmd *cobra.Command, args []string) {
	maxResults, _ := cmd.Flags().GetInt("max")
	query := strings.Join(args, " ")

	cfg := loadConfig()
	reg := openRegistry(cfg)

	records, err := reg.Archive().Search(query, maxResults)
	if err != nil {
		exitErr("archive search", err)
	}
	if len(records) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  [%s/%s archived w%d]  %s\n",
			rec.ID, rec.Persona, rec.Tier, rec.ArchivedAtWake, rec.Content)
	}
}

func runArchiveRestore(cmd *cobra.Command, args []string) {
	personaName, _ := cmd.Flags().GetString("persona")
	wake, _ := cmd.Flags().GetInt64("wake")

	cfg := loadConfig()
	reg := openRegistry(cfg)

	lc := memory.NewLifecycle(reg, cfg.Lifecycle)
	if err := lc.Restore(personaName, args[0], wake); err != nil {
		exitErr("archive restore", err)
	}
	fmt.Printf("restored %s into %s/long\n", args[0], personaName)
}
