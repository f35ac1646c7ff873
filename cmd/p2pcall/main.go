// p2pcall — CLI entry point.
//
// This tool places or answers a peer-to-peer audio/video call over WebRTC.
// Both peers join the same room of a signaling relay (see cmd/sigserver) and
// negotiate through it; media then flows directly between them.
//
// It can be launched interactively (no -role) or non-interactively via CLI
// flags (-role, -url, -room), a YAML file (-config) or P2PCALL_* environment
// variables, also read from a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/1ureka/p2pcall/internal/app"
	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/session"
	"github.com/1ureka/p2pcall/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a YAML config file")
	role := flag.String("role", "", "Role: caller or callee")
	urlFlag := flag.String("url", "", "Signaling server URL, e.g. wss://example.com")
	room := flag.String("room", "", "Signaling room shared by both peers")
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
	if *role != "" {
		cfg.Role = config.Role(*role)
	}
	if *urlFlag != "" {
		cfg.SignalingURL = *urlFlag
	}
	if *room != "" {
		cfg.Room = *room
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("p2pcall — v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		// No role configured → interactive mode.
		askConfig(cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("signaling connection closed")
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// run joins the room and serves calls until Ctrl+C or until the transport
// drops. A caller also quits once its call has ended.
func run(ctx context.Context, cfg *config.Config) error {
	roomURL, err := cfg.RoomURL()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := app.Connect(ctx, roomURL, media.Factory(cfg.ICEServers), consoleObserver{})
	if err != nil {
		return err
	}

	util.StartStatsReporter(ctx, cfg.StatsInterval)

	switch cfg.Role {
	case config.RoleCaller:
		if _, err := client.Call(); err != nil {
			return fmt.Errorf("failed to start call: %w", err)
		}
		if s, ok := client.Active(); ok {
			go func() {
				<-s.Done()
				cancel()
			}()
		}
	case config.RoleCallee:
		util.LogInfo("waiting for an incoming call in room %q...", cfg.Room)
	}

	if err := client.Serve(ctx); err != nil {
		return fmt.Errorf("signaling connection lost: %w", err)
	}
	return nil
}

// consoleObserver prints session progress for the user.
type consoleObserver struct{}

func (consoleObserver) OnSessionStateChanged(id session.ID, state session.State) {
	switch state {
	case session.Negotiating:
		util.LogInfo("[%s] descriptions exchanged, establishing media...", id.Short())
	case session.Connected:
		util.LogSuccess("[%s] call connected", id.Short())
	case session.Closed:
		util.LogInfo("[%s] call ended", id.Short())
	default:
		util.LogDebug("[%s] %s", id.Short(), state)
	}
}

func (consoleObserver) OnSessionError(id session.ID, err *session.Error) {
	util.LogError("[%s] %v", id.Short(), err)
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askConfig fills in the role, and the signaling URL if it is missing.
func askConfig(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Caller — Start a call", "Callee — Wait for a call"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Caller") {
		cfg.Role = config.RoleCaller
	} else {
		cfg.Role = config.RoleCallee
	}

	if cfg.SignalingURL == "" {
		cfg.SignalingURL = askURL()
	}
}

// askURL prompts the user for a valid signaling URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling server (e.g. wss://example.com)").
			Show()

		if _, err := config.NormalizeSignalingURL(raw); err == nil {
			pterm.Println()
			return raw
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
