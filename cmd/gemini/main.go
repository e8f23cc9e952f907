// Command gemini chats with Gemini models from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/skosovsky/gemini/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
