package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Red("Error: "+err.Error()))
		os.Exit(errs.ExitCode(err))
	}
}
