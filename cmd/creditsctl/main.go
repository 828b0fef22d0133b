package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Muneerali199/DocMagic-sub004/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd(cli.OpenDatabase).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
