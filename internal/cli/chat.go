package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/agent-mind/internal/agent"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation with periodic edge decay",
		Long: "Read messages from stdin line by line and run each through the tool loop. " +
			"While the session is open, edge decay runs every graph.decay_interval. " +
			"Type /clear to reset the session buffer, /exit to quit.",
		Run: runChat,
	}

	cmd.Flags().Bool("no-decay", false, "Disable the periodic decay worker")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	noDecay, _ := cmd.Flags().GetBool("no-decay")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	o, err := newOrchestrator(ctx, s)
	if err != nil {
		exitErr("setup", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if !noDecay {
		interval := cfg.GetDecayInterval()
		g.Go(func() error {
			return decayLoop(gctx, s, interval, cfg.Graph.DecayRate, cfg.Graph.DecayFloor)
		})
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	g.Go(func() error {
		defer cancel()
		return repl(gctx, o, lines)
	})

	if err := g.Wait(); err != nil {
		exitErr("chat", err)
	}
}

// readLines feeds stdin into out and closes it at EOF. It may outlive the
// session while blocked on a read.
func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func repl(ctx context.Context, o *agent.Orchestrator, lines <-chan string) error {
	fmt.Fprint(os.Stderr, "> ")
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			fmt.Fprint(os.Stderr, "> ")
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			o.ClearSession()
			fmt.Fprintln(os.Stderr, "session cleared")
			fmt.Fprint(os.Stderr, "> ")
			continue
		}

		start := time.Now()
		res, err := o.ProcessMessage(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A failed turn should not end the session.
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			fmt.Fprint(os.Stderr, "> ")
			continue
		}

		fmt.Println(res.Response)
		meta := fmt.Sprintf("%d iterations, %d tool calls, %s tokens, %s",
			res.TotalIterations, len(res.ToolCalls), humanize.Comma(res.Usage.Total()),
			time.Since(start).Round(10*time.Millisecond))
		if res.CompactionPerformed {
			meta += ", compacted"
		}
		fmt.Fprintf(os.Stderr, "[%s]\n> ", meta)
	}
}
