// ABOUTME: Admin CLI for chorale membership and library folders
// ABOUTME: Works directly against the configured SQLite database

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/chorale/internal/admin"
	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/config"
	"github.com/2389/chorale/internal/library"
	"github.com/2389/chorale/internal/store"
)

const banner = `
       _                     _                 _           _
   ___| |__   ___  _ __ __ _| | ___   __ _  __| |_ __ ___ (_)_ __
  / __| '_ \ / _ \| '__/ _' | |/ _ \ / _' |/ _' | '_ ' _ \| | '_ \
 | (__| | | | (_) | | | (_| | |  __/| (_| | (_| | | | | | | | | | |
  \___|_| |_|\___/|_|  \__,_|_|\___| \__,_|\__,_|_| |_| |_|_|_| |_|
`

const minPasswordLen = 8

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return
	case "users", "approve", "reject", "promote", "delete", "set-password", "folders":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	err := withStore(func(s *store.SQLiteStore) error {
		members := admin.NewMembers(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
		switch cmd {
		case "users":
			return cmdUsers(ctx, members, args)
		case "approve":
			return cmdMemberAction(ctx, members, args, "approved", members.Approve)
		case "reject":
			return cmdMemberAction(ctx, members, args, "rejected", members.Reject)
		case "promote":
			return cmdMemberAction(ctx, members, args, "promoted to admin", members.Promote)
		case "delete":
			return cmdMemberAction(ctx, members, args, "deleted", func(ctx context.Context, id string) error {
				// the CLI acts outside any session, so no self-delete guard applies
				return members.Delete(ctx, "", id)
			})
		case "set-password":
			return cmdSetPassword(ctx, members, args)
		case "folders":
			return cmdFolders(ctx, library.NewFolders(s))
		}
		return nil
	})
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: chorale-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  users [status]              List members (pending, approved or rejected)")
	fmt.Println("  approve <id|email>          Approve a member")
	fmt.Println("  reject <id|email>           Reject a member")
	fmt.Println("  promote <id|email>          Make an approved member an admin")
	fmt.Println("  delete <id|email>           Delete a member and their content")
	fmt.Println("  set-password <id|email>     Set a member's sign-in password")
	fmt.Println("  folders                     List library folders")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CHORALE_CONFIG              Config file path (default: ./chorale.yaml or")
	fmt.Println("                              $XDG_CONFIG_HOME/chorale/config.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  chorale-admin users pending")
	fmt.Println("  chorale-admin approve soprano@example.com")
	fmt.Println()
}

// withStore opens the configured database for the duration of fn.
func withStore(fn func(*store.SQLiteStore) error) error {
	path := config.ResolvePath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	return fn(s)
}

func cmdUsers(ctx context.Context, members *admin.Members, args []string) error {
	var filter *store.UserStatus
	if len(args) > 0 {
		st := store.UserStatus(strings.ToLower(args[0]))
		if !st.Valid() {
			return fmt.Errorf("unknown status %q (use pending, approved, rejected)", args[0])
		}
		filter = &st
	}

	users, err := members.ListUsers(ctx, filter)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Members")
	cyan.Println("  -------")

	if len(users) == 0 {
		fmt.Println("  (no members)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tSTATUS\tROLE\tJOINED")
	fmt.Fprintln(w, "  --\t----\t-----\t------\t----\t------")
	for _, u := range users {
		role := string(u.Role)
		if u.IsAdmin() {
			role = color.MagentaString(role)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(u.ID, 13), truncate(u.Name, 20), truncate(u.Email, 32),
			statusColor(u.Status), role, u.CreatedAt.Local().Format("Jan 02 2006"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func statusColor(s store.UserStatus) string {
	switch s {
	case store.UserStatusApproved:
		return color.GreenString(string(s))
	case store.UserStatusRejected:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

// cmdMemberAction resolves the member named in args and applies action to it.
func cmdMemberAction(ctx context.Context, members *admin.Members, args []string, done string, action func(context.Context, string) error) error {
	if len(args) < 1 {
		return errors.New("member id or email required")
	}
	u, err := members.Lookup(ctx, args[0])
	if err != nil {
		return err
	}
	if err := action(ctx, u.ID); err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("✓ %s %s\n", displayName(u), done)
	return nil
}

func cmdSetPassword(ctx context.Context, members *admin.Members, args []string) error {
	if len(args) < 1 {
		return errors.New("member id or email required")
	}
	u, err := members.Lookup(ctx, args[0])
	if err != nil {
		return err
	}

	password, err := readPassword("New password: ")
	if err != nil {
		return err
	}
	if len([]rune(password)) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := members.SetPasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("✓ password set for %s\n", displayName(u))
	return nil
}

func readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("set-password needs an interactive terminal")
	}
	fmt.Print(label)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func cmdFolders(ctx context.Context, folders *library.Folders) error {
	list, err := folders.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Library Folders")
	cyan.Println("  ---------------")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ORDER\tSLUG\tNAME\tITEMS\tID")
	fmt.Fprintln(w, "  -----\t----\t----\t-----\t--")
	for _, f := range list {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%s\n", f.SortOrder, f.Slug, f.Name, f.ItemCount, f.ID)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func displayName(u *store.User) string {
	if u.Email != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Name
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
