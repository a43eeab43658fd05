// Command sclogin signs in to SoundCloud and serves the API with the stored tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/sclogin/cmd/sclogin/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sclogin: %v\n", err)
		stop()
		os.Exit(1)
	}
}
