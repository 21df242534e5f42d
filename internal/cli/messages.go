package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "messages [query]",
		Short: "List recent messages or search them",
		Long:  "Without a query, print the newest messages oldest first. With a query, search message content newest first.",
		Run:   runMessages,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().String("session", "", "Only messages from this session id")

	RootCmd.AddCommand(cmd)
}

func runMessages(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	session, _ := cmd.Flags().GetString("session")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	query := strings.Join(args, " ")
	var msgs []model.Message
	switch {
	case session != "":
		msgs, err = s.SessionMessages(ctx, session)
	case query != "":
		msgs, err = s.SearchMessages(ctx, query, limit)
	default:
		msgs, err = s.RecentMessages(ctx, limit)
	}
	if err != nil {
		exitErr("messages", err)
	}

	if textFormat() {
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), strings.ToUpper(m.Role), m.Content)
		}
		return
	}
	printJSON(msgs)
}
