// Command immobilog records wildlife immobilization events from the shell.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"immobilog/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
