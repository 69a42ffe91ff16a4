package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Store a memory for a persona",
		Long:  "Store a memory in the persona's short-term tier. Content can be a positional arg or piped via stdin.",
		Run:   runAdd,
	}

	cmd.Flags().StringP("persona", "p", "default", "Persona name")
	cmd.Flags().StringP("origin", "o", "manual", "Where the memory came from")
	cmd.Flags().Int64P("wake", "w", 0, "Current wake number (required)")

	cmd.MarkFlagRequired("wake")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	personaName, _ := cmd.Flags().GetString("persona")
	origin, _ := cmd.Flags().GetString("origin")
	wake, _ := cmd.Flags().GetInt64("wake")

	// Positional arg first, then stdin.
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("add", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	cfg := loadConfig()
	reg := openRegistry(cfg)

	persona := reg.Persona(personaName)
	if persona == nil {
		exitErr("add", fmt.Errorf("unknown persona %q", personaName))
	}

	entry, err := persona.Add(content, origin, wake)
	if err != nil {
		exitErr("add", err)
	}

	b, _ := json.MarshalIndent(entry, "", "  ")
	fmt.Println(string(b))
}
