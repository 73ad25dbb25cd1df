package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fresherjobs/internal/cli"
)

func main() {
	path, err := cli.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(path, cli.Open).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
