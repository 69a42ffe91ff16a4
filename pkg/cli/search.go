package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a persona's memories",
		Long:  "Search the persona's short-term and long-term tiers. Every hit counts as an access.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("persona", "p", "default", "Persona name")
	cmd.Flags().Int64P("wake", "w", 0, "Current wake number (required)")
	cmd.Flags().Bool("prompt", false, "Render results as a prompt block instead of a list")

	cmd.MarkFlagRequired("wake")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	personaName, _ := cmd.Flags().GetString("persona")
	wake, _ := cmd.Flags().GetInt64("wake")
	asPrompt, _ := cmd.Flags().GetBool("prompt")
	query := strings.Join(args, " ")

	cfg := loadConfig()
	reg := openRegistry(cfg)

	persona := reg.Persona(personaName)
	if persona == nil {
		exitErr("search", fmt.Errorf("unknown persona %q", personaName))
	}

	if asPrompt {
		block, err := persona.FormatForPrompt(query, wake)
		if err != nil {
			exitErr("search", err)
		}
		fmt.Println(block)
		return
	}

	results, err := persona.Search(query, wake)
	if err != nil {
		exitErr("search", err)
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, res := range results {
		fmt.Printf("%s  [%s w%d %dx]  %s\n",
			res.Entry.ID, res.Tier, res.Entry.LastAccessedWake, res.Entry.AccessCount, res.Entry.Content)
	}
}
