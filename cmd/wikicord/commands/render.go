package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/euforicio/wikicord/internal/exporter"
)

func newRenderCommand(a *app) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a single note",
		Long: `Render converts one markdown note with Discord threads and citations
resolved. Formats: html (standalone page), markdown, txt, and pdf, where
threads are flattened into quotes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := exporter.ParseFormat(format)
			if !ok {
				return fmt.Errorf("unsupported format %q", format)
			}
			root, rel, err := locateNote(a.cfg.RootDir, args[0])
			if err != nil {
				return err
			}

			exp, err := exporter.New(a.logger)
			if err != nil {
				return err
			}

			var w io.Writer = a.stdout
			if output != "" {
				file, err := os.Create(output) //nolint:gosec // operator supplied path
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}
			return exp.ExportPage(cmd.Context(), exporter.PageOptions{
				RootDir: root,
				Path:    rel,
				Format:  f,
				Writer:  w,
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(exporter.FormatHTML), "output format (html, markdown, txt, pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// locateNote resolves file against root. Notes outside root are rendered
// relative to their own directory.
func locateNote(root, file string) (string, string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", "", fmt.Errorf("resolve note: %w", err)
	}
	if rel, err := filepath.Rel(root, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return root, filepath.ToSlash(rel), nil
	}
	return filepath.Dir(abs), filepath.Base(abs), nil
}
