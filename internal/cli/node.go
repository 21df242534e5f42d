package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Graph memory nodes",
}

func init() {
	putCmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory node",
		Long:  "Store a memory node. Content can be a positional arg or piped via stdin.",
		Run:   runNodePut,
	}
	putCmd.Flags().StringP("source", "s", "conversation", "Source: conversation, perch_tick, research, reflection")
	putCmd.Flags().String("summary", "", "Short summary")
	putCmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Retrieve a node (records the access)",
		Args:  cobra.ExactArgs(1),
		Run:   runNodeGet,
	}

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest nodes",
		Run:   runNodeRecent,
	}
	recentCmd.Flags().StringP("source", "s", "", "Filter by source")
	recentCmd.Flags().IntP("limit", "l", 20, "Max results")
	recentCmd.Flags().Bool("ids-only", false, "Only output node ids")

	nodeCmd.AddCommand(putCmd, getCmd, recentCmd)
	RootCmd.AddCommand(nodeCmd)
}

func runNodePut(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	summary, _ := cmd.Flags().GetString("summary")
	tagsStr, _ := cmd.Flags().GetString("tags")

	// Get content: positional arg first, then check stdin
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
		exitErr("node put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.CreateNode(cmd.Context(), store.NodeParams{
		Content: strings.TrimSpace(content),
		Summary: summary,
		Source:  source,
		Tags:    splitTags(tagsStr),
	})
	if err != nil {
		exitErr("node put", err)
	}

	printJSON(n)
}

func runNodeGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.GetNode(cmd.Context(), args[0])
	if err != nil {
		exitErr("node get", err)
	}

	printJSON(n)
}

func runNodeRecent(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	nodes, err := s.ListRecentNodes(cmd.Context(), limit, source)
	if err != nil {
		exitErr("node recent", err)
	}

	if idsOnly {
		for _, n := range nodes {
			fmt.Println(n.ID)
		}
		return
	}

	printJSON(nodes)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
