package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-web/config"
	"library-web/library"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "library",
	Short: "Library management web application",
	Long: `library runs the library web application and a few administrative
commands that work directly on its SQLite database.

The database path and the server settings are read from LIBRARY_* environment
variables; flags take precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default $LIBRARY_DB or library.db)")
	rootCmd.AddCommand(serveCmd, userCmd, booksCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func openManager(cfg config.Config, options ...library.ManagerOption) (*library.LibraryManager, error) {
	options = append([]library.ManagerOption{library.WithPageSize(cfg.PageSize)}, options...)
	manager, err := library.NewLibraryManager(cfg.DBPath, options...)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	return manager, nil
}

// readPassword reads a password without echo. Piped input is read as a line.
func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
