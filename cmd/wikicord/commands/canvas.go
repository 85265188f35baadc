package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/euforicio/wikicord/internal/canvas"
)

func newCanvasCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canvas",
		Short: "Work with Obsidian canvas files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>...",
		Short: "Report structural problems in canvas files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			total := 0
			for _, path := range args {
				raw, err := os.ReadFile(path) //nolint:gosec // operator supplied path
				if err != nil {
					return fmt.Errorf("read canvas: %w", err)
				}
				c, err := canvas.Parse(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				problems := c.Validate()
				for _, p := range problems {
					fmt.Fprintf(a.stdout, "%s: %s\n", path, p)
				}
				a.logger.Info("validated canvas",
					slog.String("file", path),
					slog.Int("nodes", len(c.Nodes)),
					slog.Int("edges", len(c.Edges)),
					slog.Int("problems", len(problems)))
				total += len(problems)
			}
			if total > 0 {
				return fmt.Errorf("%d canvas problem(s) found", total)
			}
			return nil
		},
	})
	return cmd
}
