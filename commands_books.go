package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"library-web/library"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Inspect the catalog",
}

var (
	booksSearch  string
	booksPage    int
	booksPerPage int
)

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		manager, err := openManager(cfg)
		if err != nil {
			return err
		}
		defer manager.Close()

		result, err := manager.Catalog(cmd.Context(), booksSearch, booksPage, booksPerPage)
		if err != nil {
			return err
		}
		fmt.Println(bookTable(result.Books))
		fmt.Println(mutedStyle.Render(fmt.Sprintf("page %d of %d, %d books", result.Page, result.TotalPages, result.Total)))
		return nil
	},
}

func init() {
	booksListCmd.Flags().StringVarP(&booksSearch, "search", "s", "", "match title, author or genre")
	booksListCmd.Flags().IntVarP(&booksPage, "page", "p", 1, "page number")
	booksListCmd.Flags().IntVar(&booksPerPage, "per-page", 20, "books per page")
	booksCmd.AddCommand(booksListCmd)
}

func bookTable(books []*library.Book) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "AUTHOR", "GENRE", "STATUS").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, b := range books {
		t.Row(strconv.FormatInt(b.ID, 10), b.Title, b.Author, b.Genre, string(b.Status))
	}
	return t
}
