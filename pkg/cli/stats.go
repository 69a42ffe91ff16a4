package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tier occupancy for every persona",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	reg := openRegistry(cfg)

	var all []memory.PersonaStats
	for _, name := range reg.Names() {
		all = append(all, reg.Persona(name).Stats())
	}

	archived, err := reg.Archive().Count()
	if err != nil {
		exitErr("stats", err)
	}

	out := struct {
		Personas []memory.PersonaStats `json:"personas"`
		Archived int                   `json:"archived"`
	}{Personas: all, Archived: archived}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
