package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the memory graph as JSON",
		Long:  "Export every node and edge as one JSON snapshot. Reading for export does not count as an access.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snapshot, err := s.ExportGraph(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	printJSON(snapshot)
}
