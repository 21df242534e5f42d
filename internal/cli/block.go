package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-mind/internal/store"
)

func init() {
	blockCmd := &cobra.Command{
		Use:   "block",
		Short: "Memory blocks rendered into every prompt",
	}

	setCmd := &cobra.Command{
		Use:   "set [label] [content]",
		Short: "Create or replace a block",
		Args:  cobra.MinimumNArgs(2),
		Run:   runBlockSet,
	}
	setCmd.Flags().String("description", "", "Block description (empty keeps the current one)")

	getCmd := &cobra.Command{
		Use:   "get [label]",
		Short: "Show a block",
		Args:  cobra.ExactArgs(1),
		Run:   runBlockGet,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all blocks",
		Run:   runBlockList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [label]",
		Short: "Delete a block",
		Args:  cobra.ExactArgs(1),
		Run:   runBlockRm,
	}

	blockCmd.AddCommand(setCmd, getCmd, listCmd, rmCmd)
	RootCmd.AddCommand(blockCmd)
}

func runBlockSet(cmd *cobra.Command, args []string) {
	description, _ := cmd.Flags().GetString("description")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := s.UpsertBlock(cmd.Context(), store.BlockParams{
		Label:       args[0],
		Content:     strings.Join(args[1:], " "),
		Description: description,
	})
	if err != nil {
		exitErr("block set", err)
	}

	printJSON(b)
}

func runBlockGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	b, err := s.GetBlock(cmd.Context(), args[0])
	if err != nil {
		exitErr("block get", err)
	}

	if textFormat() {
		fmt.Println(b.Content)
		return
	}
	printJSON(b)
}

func runBlockList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	blocks, err := s.ListBlocks(cmd.Context())
	if err != nil {
		exitErr("list blocks", err)
	}

	printJSON(blocks)
}

func runBlockRm(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteBlock(cmd.Context(), args[0]); err != nil {
		exitErr("block rm", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"label":%q}`+"\n", args[0])
}
