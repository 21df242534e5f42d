package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Summarize and evict old messages",
		Long:  "Run compaction now. Without --force it only runs when the context estimate has reached the threshold.",
		Run:   runCompact,
	}

	cmd.Flags().Bool("force", false, "Compact even below the threshold")

	RootCmd.AddCommand(cmd)
}

func runCompact(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := newProvider(ctx)
	if err != nil {
		exitErr("setup", err)
	}
	engine := newCompactor(s, p)

	if !force {
		needs, err := engine.NeedsCompaction(ctx)
		if err != nil {
			exitErr("compact", err)
		}
		if !needs {
			fmt.Println(`{"skipped":true,"reason":"below_threshold"}`)
			return
		}
	}

	res, err := engine.Compact(ctx)
	if err != nil {
		exitErr("compact", err)
	}

	printJSON(res)
}
