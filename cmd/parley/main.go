package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/tmarsal/parley/internal/account"
	"github.com/tmarsal/parley/internal/app"
	"github.com/tmarsal/parley/internal/config"
	"github.com/tmarsal/parley/internal/tui"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	serverFlag := flag.String("server", "", "account service URL (overrides config)")
	flag.Parse()

	accountName := account.Resolve(*accountFlag)
	if err := account.ValidateName(accountName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	serverURL := *serverFlag
	if serverURL == "" {
		serverURL = config.DefaultServerURL
		if cfg, err := config.Load(account.ConfigPath()); err == nil && cfg.ServerURL != "" {
			serverURL = cfg.ServerURL
		}
	}

	var ui *tui.App
	fxApp := fx.New(
		app.Module(app.Params{AccountName: accountName, ServerURL: serverURL}),
		fx.Populate(&ui),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	_ = fxApp.Stop(stopCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
