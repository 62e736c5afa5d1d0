// ABOUTME: The serve command: a SQLite-backed conversation tree exposed over gRPC
// ABOUTME: Also hosts the interactive init command that writes a starter config

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/coven-conversations/internal/auth"
	"github.com/2389/coven-conversations/internal/config"
	"github.com/2389/coven-conversations/internal/remote"
	"github.com/2389/coven-conversations/internal/store"
	"github.com/2389/coven-conversations/internal/treerpc"
)

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s ", cfg.Database.Path)
	gray.Printf("(%s)\n", cfg.Database.Driver)
	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ▶ ")
		yellow.Println("Auth:      disabled")
	}
	fmt.Println()

	sqlStore, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer sqlStore.Close()

	tree, err := remote.NewLocalTree(ctx, remote.WithStore(sqlStore), remote.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("loading tree: %w", err)
	}
	defer tree.Close()

	server, err := createGRPCServer(cfg, logger)
	if err != nil {
		return err
	}
	treerpc.NewServer(tree, logger).Register(server)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr, err)
	}

	logger.Info("starting coven-conversations",
		"config", configPath,
		"grpc_addr", lis.Addr().String(),
		"database", cfg.Database.Path,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		// Open Subscribe streams only end when the tree closes.
		tree.Close()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			server.Stop()
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("grpc server: %w", err)
	}
}

// createGRPCServer creates a gRPC server with or without auth based on config.
func createGRPCServer(cfg *config.Config, logger *slog.Logger) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth disabled - no jwt_secret configured")
		opts = append(opts,
			grpc.ChainUnaryInterceptor(auth.NoAuthUnaryInterceptor()),
			grpc.ChainStreamInterceptor(auth.NoAuthStreamInterceptor()),
		)
		return grpc.NewServer(opts...), nil
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	authLogger := logger.With("component", "auth")
	opts = append(opts,
		grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(verifier, authLogger)),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(verifier, authLogger)),
	)
	logger.Info("auth interceptors enabled (JWT)")
	return grpc.NewServer(opts...), nil
}

// runToken issues a client token signed with the configured secret.
func runToken(args []string) error {
	f, err := parseFlags(args, []string{"user", "app", "ttl"}, nil)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	userID, err := f.require("user")
	if err != nil {
		return err
	}
	appID := f["app"]
	if appID == "" {
		appID = cfg.AppID
	}
	if appID == "" {
		return fmt.Errorf("--app is required when app_id is not configured")
	}
	ttl, err := f.duration("ttl", cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(userID, appID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coven-conversations configuration setup")
	fmt.Println("=======================================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), config.DefaultDBPath)

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Identity ---")
	appID := prompt(reader, "App id", "chat21")
	userID := prompt(reader, "User id", "")

	fmt.Println("\n--- Server Configuration ---")
	grpcAddr := prompt(reader, "gRPC address", config.DefaultGRPCAddr)
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)
	driver := prompt(reader, "SQLite driver (sqlite/sqlite3)", config.DefaultDBDriver)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	var cfg strings.Builder
	cfg.WriteString("# coven-conversations configuration\n")
	cfg.WriteString("# Generated by coven-conversations init\n\n")

	fmt.Fprintf(&cfg, "app_id: %q\n", appID)
	fmt.Fprintf(&cfg, "user_id: %q\n\n", userID)

	cfg.WriteString("remote:\n")
	fmt.Fprintf(&cfg, "  addr: %q\n", grpcAddr)
	cfg.WriteString("  token: \"${COVEN_TREE_TOKEN}\"\n")
	cfg.WriteString("  insecure: true\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n\n", grpcAddr)

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  driver: %q\n", driver)
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", jwtSecret)
	cfg.WriteString("  token_ttl: \"24h\"\n\n")

	cfg.WriteString("reconcile:\n")
	cfg.WriteString("  timeout: \"10s\"\n")
	cfg.WriteString("  dedupe_window: \"30s\"\n\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server and get a client token:")
	fmt.Println("  coven-conversations serve")
	if userID != "" {
		fmt.Printf("  export COVEN_TREE_TOKEN=$(coven-conversations token --user %s)\n", userID)
	}

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
