// Command import_books loads a catalog from a CSV file with the columns
// title, author and genre. A header row is skipped when its first cell is
// "title".
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"library-web/library"
)

var (
	dbPath  string
	csvPath string
)

var rootCmd = &cobra.Command{
	Use:          "import_books",
	Short:        "Load books from a CSV file into the library database",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		manager, err := library.NewLibraryManager(dbPath, library.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("open database %s: %w", dbPath, err)
		}
		defer manager.Close()

		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()

		imported, failed, err := importBooks(cmd.Context(), manager, f, logger)
		if err != nil {
			return fmt.Errorf("import aborted: %w", err)
		}
		logger.Info("import complete", "imported", imported, "failed", failed)
		if failed > 0 {
			return fmt.Errorf("%d rows could not be imported", failed)
		}
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&dbPath, "db", "library.db", "SQLite database path")
	rootCmd.Flags().StringVarP(&csvPath, "file", "f", "books.csv", "CSV file with title,author,genre rows")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type bookImporter interface {
	ImportBook(ctx context.Context, in library.BookInput) (int64, error)
}

// importBooks adds every row of r. Rows that fail validation are logged and
// counted; a malformed CSV stops the import.
func importBooks(ctx context.Context, lm bookImporter, r io.Reader, logger *slog.Logger) (imported, failed int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return imported, failed, nil
		}
		if err != nil {
			return imported, failed, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "title") {
			continue
		}

		in := library.BookInput{Title: field(record, 0), Author: field(record, 1), Genre: field(record, 2)}
		id, err := lm.ImportBook(ctx, in)
		if err != nil {
			logger.Warn("skipping row", "line", line, "error", err)
			failed++
			continue
		}
		logger.Debug("imported", "line", line, "book_id", id, "title", in.Title)
		imported++
	}
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
