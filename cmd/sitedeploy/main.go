package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/renzodupont/renzodupont/internal/cli"
	"github.com/renzodupont/renzodupont/internal/util/signalctx"
)

func main() {
	ctx, cancel, sigCh := signalctx.WithSignals(context.Background())
	defer cancel()
	go func() {
		if sig, ok := <-sigCh; ok {
			slog.Warn("signal received, stopping", "signal", sig.String())
		}
	}()

	if err := cli.Execute(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
