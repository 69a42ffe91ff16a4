package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/pkg/config"
	enctx "github.com/engramhq/engram/pkg/context"
	"github.com/engramhq/engram/pkg/llm/openai"
	"github.com/engramhq/engram/pkg/llm/tokenizer"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compact [context-id]",
		Short: "Compact a working context down to its token budget",
		Long: "Run the escalating compaction pipeline (dedup, summarize, escalate, delete,\n" +
			"truncate) against a persisted working context. Without --force the run is a\n" +
			"no-op when the context sits under its trigger threshold.",
		Args: cobra.ExactArgs(1),
		Run:  runCompact,
	}

	cmd.Flags().Bool("force", false, "Compact even below the trigger threshold")

	RootCmd.AddCommand(cmd)
}

func runCompact(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	contextID := args[0]

	cfg := loadConfig()
	ctxCfg, ok := cfg.Contexts[contextID]
	if !ok {
		exitErr("compact", fmt.Errorf("unknown context %q", contextID))
	}

	tok, err := tokenizer.New()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: tokenizer init failed, using estimates: %v\n", err)
	}

	path := contextPath(cfg, contextID)
	wc := enctx.Load(path, contextID, contextID, ctxCfg, tok)

	provider, err := openai.NewProvider("", openai.WithModel(cfg.Models.Efficient))
	if err != nil {
		exitErr("compact", err)
	}

	compactor := enctx.NewCompactor(provider, cfg.Compaction, cfg.Models, cfg.DataDir)

	var result *enctx.Result
	if force {
		result, err = compactor.ForceCompact(cmd.Context(), wc)
	} else {
		result, err = compactor.MaybeCompact(cmd.Context(), wc)
	}
	if err != nil {
		exitErr("compact", err)
	}

	if err := wc.Save(path); err != nil {
		exitErr("save context", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}

func contextPath(cfg *config.Config, contextID string) string {
	return filepath.Join(cfg.DataDir, "contexts", contextID+".json")
}
