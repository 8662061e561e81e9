package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/osagaming/avicrm/internal/config"
	"github.com/osagaming/avicrm/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default <data dir>/config.toml)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	onceFlag := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *onceFlag {
		result, err := daemon.RunOnce(context.Background(), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		if result.ShopsFailed > 0 {
			os.Exit(2)
		}
		return
	}

	listenAddr := cfg.ListenAddr
	if *listenFlag != "" {
		listenAddr = *listenFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg, ListenAddr: listenAddr}),
	)

	app.Run()
}
