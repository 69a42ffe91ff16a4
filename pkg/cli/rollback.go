package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	enctx "github.com/engramhq/engram/pkg/context"
	"github.com/engramhq/engram/pkg/llm/tokenizer"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rollback [context-id]",
		Short: "Restore a working context from its most recent backup",
		Long: "Replace a context's messages with the latest pre-compaction snapshot.\n" +
			"Snapshots are written automatically before any truncation step.",
		Args: cobra.ExactArgs(1),
		Run:  runRollback,
	}

	RootCmd.AddCommand(cmd)
}

func runRollback(cmd *cobra.Command, args []string) {
	contextID := args[0]

	cfg := loadConfig()
	ctxCfg, ok := cfg.Contexts[contextID]
	if !ok {
		exitErr("rollback", fmt.Errorf("unknown context %q", contextID))
	}

	tok, err := tokenizer.New()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: tokenizer init failed, using estimates: %v\n", err)
	}

	path := contextPath(cfg, contextID)
	wc := enctx.Load(path, contextID, contextID, ctxCfg, tok)

	backups := enctx.NewBackupStore(filepath.Join(cfg.DataDir, "backups"))
	if err := backups.RestoreLatest(wc); err != nil {
		exitErr("rollback", err)
	}
	if err := wc.Save(path); err != nil {
		exitErr("save context", err)
	}

	fmt.Printf("Restored %s: %d messages, %d tokens\n", contextID, wc.Len(), wc.TokenCount())
}
