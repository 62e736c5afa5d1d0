// ABOUTME: Entry point for coven-conversations, a conversation tree server and client
// ABOUTME: Dispatches serve/init/token and the watch/list/send/read client commands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-conversations/internal/config"
)

// version is overridden with -ldflags "-X main.version=..." in release builds.
var version = "dev"

const banner = `
  ___ ___  _ ___ _____ _ __ ___  __ _| |_(_) ___  _ __  ___
 / __/ _ \| '_ \ \ / _ \ '__/ __|/ _' | __| |/ _ \| '_ \/ __|
| (_| (_) | | | \ V /  __/ |  \__ \ (_| | |_| | (_) | | | \__ \
 \___\___/|_| |_|\_/ \___|_|  |___/\__,_|\__|_|\___/|_| |_|___/
`

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

func usage() {
	fmt.Println("Usage: coven-conversations <command> [flags]")
	fmt.Println()
	fmt.Println("Server commands:")
	fmt.Println("  serve                              Serve the conversation tree over gRPC")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  token --user ID [--app ID]         Issue a client token")
	fmt.Println()
	fmt.Println("Client commands:")
	fmt.Println("  watch                              Stream conversation events")
	fmt.Println("  list [--wait 1s]                   Print conversations, newest first")
	fmt.Println("  send --with ID --text TEXT         Write a conversation node")
	fmt.Println("       [--id ID] [--name NAME] [--incoming]")
	fmt.Println("  read --id ID [--wait 1s]           Mark a conversation read")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(args)
	case "watch":
		err = runWatch(ctx)
	case "list":
		err = runList(ctx, args)
	case "send":
		err = runSend(ctx, args)
	case "read":
		err = runRead(ctx, args)
	case "help", "-h", "--help":
		usage()
	case "version", "--version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, string, error) {
	configPath := config.DefaultPath()

	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.Database.Path = filepath.Join(getDataPath(), config.DefaultDBPath)
		return cfg, configPath + " (not found, using defaults)", nil
	}
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	// Accepts debug, info, warn, error; anything else means info.
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			out:   os.Stderr,
			level: level,
		}
	}

	return slog.New(handler)
}
