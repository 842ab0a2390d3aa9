// tokbox-tui is a terminal console for the tokbox ops API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/tokbox/tokbox/cmd/tokbox-tui/internal/config"
	"github.com/tokbox/tokbox/cmd/tokbox-tui/internal/opsclient"
	"github.com/tokbox/tokbox/cmd/tokbox-tui/internal/ui"
)

func main() {
	cfg := config.Load()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		if err := printSummary(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := ui.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing TUI: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

func printSummary(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := opsclient.NewClient(cfg.Server, cfg.APIKey)
	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Print(ui.Summary(client.BaseURL(), stats))
	return nil
}
