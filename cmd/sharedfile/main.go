package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpl-au/sharedfile"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	// os.Exit skips deferred calls, so sentinels are released explicitly.
	if rerr := sharedfile.ReleaseSentinels(); rerr != nil {
		fmt.Fprintln(os.Stderr, "release sentinels:", rerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
