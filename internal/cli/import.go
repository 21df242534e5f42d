package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a memory graph snapshot from JSON",
		Long:  "Import nodes and edges from stdin. Expects the format produced by export; rows that already exist are skipped.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var snapshot store.GraphSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	result, err := s.ImportGraph(cmd.Context(), &snapshot)
	if err != nil {
		exitErr("import", err)
	}

	printJSON(result)
}
