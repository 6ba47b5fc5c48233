// ABOUTME: First-run commands: interactive config creation and first admin bootstrap
// ABOUTME: bootstrap writes a config with a random session secret when none exists

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/chorale/internal/admin"
	"github.com/2389/chorale/internal/config"
	"github.com/2389/chorale/internal/store"
)

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// initOptions are the answers collected by runInit.
type initOptions struct {
	HTTPAddr  string
	BaseURL   string
	SiteName  string
	DBPath    string
	Secret    string
	DevLogin  bool
	Tailscale bool
	Hostname  string
	AuthKey   string
	Funnel    bool
	LogLevel  string
	LogFormat string
}

// renderConfig produces the YAML written by init and bootstrap.
func renderConfig(o initOptions, generatedBy string) string {
	var b strings.Builder
	b.WriteString("# chorale configuration\n")
	fmt.Fprintf(&b, "# Generated by chorale %s\n\n", generatedBy)

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n\n", o.HTTPAddr)

	if o.Tailscale {
		b.WriteString("tailscale:\n")
		b.WriteString("  enabled: true\n")
		fmt.Fprintf(&b, "  hostname: %q\n", o.Hostname)
		if o.AuthKey != "" {
			fmt.Fprintf(&b, "  auth_key: %q\n", o.AuthKey)
		}
		fmt.Fprintf(&b, "  funnel: %t\n\n", o.Funnel)
	}

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", o.DBPath)

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n", o.Secret)
	b.WriteString("  session_ttl: \"720h\"\n")
	b.WriteString("  refresh_after: \"5m\"\n")
	if o.DevLogin {
		b.WriteString("  dev_login: true\n\n")
	} else {
		b.WriteString("  # email + password sign-in stays on until an OAuth provider is configured\n")
		b.WriteString("  # dev_login: true\n\n")
	}

	b.WriteString("# oauth:\n")
	b.WriteString("#   google:\n")
	b.WriteString("#     client_id: \"${GOOGLE_CLIENT_ID}\"\n")
	b.WriteString("#     client_secret: \"${GOOGLE_CLIENT_SECRET}\"\n\n")

	b.WriteString("site:\n")
	if o.BaseURL != "" {
		fmt.Fprintf(&b, "  base_url: %q\n", o.BaseURL)
	}
	fmt.Fprintf(&b, "  name: %q\n\n", o.SiteName)

	b.WriteString("uploads:\n")
	b.WriteString("  backend: \"local\"\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", o.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n", o.LogFormat)
	return b.String()
}

func writeConfigFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("chorale configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.ResolvePath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}
	o := initOptions{Secret: secret}

	fmt.Println("\n--- Site ---")
	o.SiteName = prompt(reader, "Choir name", "chorale")
	o.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")
	o.BaseURL = prompt(reader, "Public base URL (blank to derive from the address)", "")

	fmt.Println("\n--- Database ---")
	o.DBPath = prompt(reader, "SQLite database path", filepath.Join(config.DataDir(), "chorale.db"))

	fmt.Println("\n--- Sign-in ---")
	o.DevLogin = yes(prompt(reader, "Keep email + password sign-in on after adding OAuth providers?", "no"))

	fmt.Println("\n--- Tailscale ---")
	o.Tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if o.Tailscale {
		o.Hostname = prompt(reader, "Tailscale hostname", "chorale")
		o.AuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		o.Funnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging ---")
	o.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	o.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := writeConfigFile(outputFile, renderConfig(o, "init")); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(o.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext:")
	fmt.Println("  chorale bootstrap --email you@example.com")
	fmt.Println("  chorale serve")
	return nil
}

// runBootstrap makes the given email the first admin, creating a config
// with a random session secret first when none exists.
func runBootstrap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	email := fs.String("email", "", "email of the first admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	configPath := config.ResolvePath()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		content := renderConfig(initOptions{
			HTTPAddr:  "localhost:8080",
			SiteName:  "chorale",
			DBPath:    filepath.Join(config.DataDir(), "chorale.db"),
			Secret:    secret,
			LogLevel:  "info",
			LogFormat: "text",
		}, "bootstrap")
		if err := writeConfigFile(configPath, content); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	members := admin.NewMembers(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	u, created, err := members.Bootstrap(ctx, *email)
	if errors.Is(err, admin.ErrAdminExists) {
		return errors.New("bootstrap already complete: an admin exists (use chorale-admin promote)")
	}
	if err != nil {
		return err
	}

	if created {
		green.Printf("  ✓ Created admin: %s\n", u.Email)
	} else {
		green.Printf("  ✓ Promoted existing member to admin: %s\n", u.Email)
	}

	fmt.Println()
	cyan.Println("  First admin")
	cyan.Println("  -----------")
	fmt.Printf("  ID:     %s\n", u.ID)
	fmt.Printf("  Email:  %s\n", u.Email)
	fmt.Printf("  Name:   %s\n", u.Name)
	fmt.Println()
	yellow.Println("  Ready to go:")
	fmt.Println("    chorale serve                           # start the server")
	fmt.Printf("    chorale-admin set-password %s   # enable password sign-in\n", u.Email)
	fmt.Println()
	return nil
}

func yes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// EOF keeps the default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
