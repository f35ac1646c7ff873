// sigserver — signaling relay for p2pcall.
//
// Peers connect to /ws/{room}; every message from one member of a room is
// relayed to the other. The relay never inspects call content.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/signaling"
	"github.com/1ureka/p2pcall/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String("config", "", "Path to a YAML config file")
	listen := flag.String("listen", "", "Listen address, e.g. :8080")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		util.LogWarning("failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("sigserver — v%s", version))
	pterm.Println()

	util.StartStatsReporter(ctx, cfg.StatsInterval)

	if err := signaling.NewRelay().ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("signaling relay stopped")
}
