// Package main provides the conform binary entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/roach88/conform/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(cli.ExitCommandError)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err == nil {
		os.Exit(cli.ExitSuccess)
	}
	if !cli.IsReported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	// Commands return ExitErrors; anything else is a usage error from cobra.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
