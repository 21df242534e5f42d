package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run a single turn and print the reply",
		Long:  "Run one user message through the tool loop. The message can be a positional arg or piped via stdin.",
		Run:   runAsk,
	}

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}
	if strings.TrimSpace(text) == "" {
		exitErr("ask", fmt.Errorf("message is required (positional arg or stdin)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	o, err := newOrchestrator(cmd.Context(), s)
	if err != nil {
		exitErr("setup", err)
	}

	res, err := o.ProcessMessage(cmd.Context(), strings.TrimSpace(text))
	if err != nil {
		exitErr("ask", err)
	}

	if textFormat() {
		fmt.Println(res.Response)
		return
	}
	printJSON(res)
}
