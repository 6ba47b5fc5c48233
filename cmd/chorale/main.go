// ABOUTME: Entry point for the chorale choir community server
// ABOUTME: Subcommands serve, init, bootstrap, migrate, health and version

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/chorale/internal/config"
	"github.com/2389/chorale/internal/server"
	"github.com/2389/chorale/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _                     _
   ___| |__   ___  _ __ __ _| | ___
  / __| '_ \ / _ \| '__/ _' | |/ _ \
 | (__| | | | (_) | | | (_| | |  __/
  \___|_| |_|\___/|_|  \__,_|_|\___|
`

func usage() {
	fmt.Println("Usage: chorale <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                    Start the server")
	fmt.Println("  init                     Create a new config file interactively")
	fmt.Println("  bootstrap --email EMAIL  Make EMAIL the first admin")
	fmt.Println("  migrate                  Apply database migrations and show their status")
	fmt.Println("  health                   Check a running server")
	fmt.Println("  version                  Print the version")
	fmt.Println()
	fmt.Println("The config file is read from $CHORALE_CONFIG, ./chorale.yaml or")
	fmt.Println("$XDG_CONFIG_HOME/chorale/config.yaml.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "migrate":
		err = runMigrate(ctx)
	case "health":
		err = runHealth(ctx)
	case "version", "--version", "-v":
		fmt.Println(version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	path := config.ResolvePath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Uploads:   %s", cfg.Uploads.Backend)
	if cfg.Uploads.Backend == config.UploadBackendLocal {
		gray.Printf(" (%s)", cfg.Uploads.Dir)
	}
	fmt.Println()
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.DevLoginEnabled() {
		yellow.Println("    ! email + shared password login is enabled")
	}
	fmt.Println()

	logger.Info("starting chorale", "config", configPath, "version", version)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

func runMigrate(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// opening the store applies pending migrations
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	infos, err := s.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, m := range infos {
		state := yellow.Sprint("pending")
		applied := "-"
		if m.Applied {
			state = green.Sprint("applied")
			applied = m.AppliedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Version, state, applied, m.Path)
	}
	return w.Flush()
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := server.BaseURL(cfg, setupLogger(config.LoggingConfig{Level: "error"})) + "/api/health"
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK        bool   `json:"ok"`
		Timestamp string `json:"timestamp"`
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.OK {
		return fmt.Errorf("unhealthy: unexpected response from %s", url)
	}

	color.Green("healthy")
	fmt.Printf("  %s at %s\n", url, body.Timestamp)
	return nil
}
