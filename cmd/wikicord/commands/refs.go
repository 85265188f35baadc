package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/euforicio/wikicord/internal/search"
)

func newRefsCommand(a *app) *cobra.Command {
	var (
		asJSON bool
		hidden bool
	)
	cmd := &cobra.Command{
		Use:   "refs [citation-id | message-url]",
		Short: "List notes that cite Discord messages",
		Long: `refs scans the notes under --root for {{discord-cite:<id>}} markers and
Discord message links. With an argument, only references to that citation
id, message id, or message link are listed. Requires ripgrep (rg).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := search.NewService(a.cfg.RootDir, a.logger)
			if err != nil {
				return err
			}
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			refs, err := svc.References(cmd.Context(), target, hidden || a.cfg.IncludeHidden)
			if err != nil {
				return fmt.Errorf("search references: %w", err)
			}
			a.logger.Debug("collected references", slog.Int("count", len(refs)), slog.String("target", target))

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if refs == nil {
					refs = []search.Reference{}
				}
				return enc.Encode(refs)
			}
			for _, ref := range refs {
				fmt.Fprintf(a.stdout, "%s:%d\t%s\t%s\n", ref.Path, ref.Line, ref.Kind, ref.ID)
			}
			if target != "" && len(refs) == 0 {
				return errors.New("no references found")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print references as JSON")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "include hidden files and directories")
	return cmd
}
