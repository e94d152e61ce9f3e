// Command wheel is the wheel ledger CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"wheel-ledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
