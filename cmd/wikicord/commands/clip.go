package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/euforicio/wikicord/internal/config"
	"github.com/euforicio/wikicord/internal/discord"
	"github.com/euforicio/wikicord/internal/discord/fetch"
)

func newClipCommand(a *app) *cobra.Command {
	var (
		withMarker bool
		asQuote    bool
	)
	cmd := &cobra.Command{
		Use:   "clip [url]...",
		Short: "Fetch Discord messages and print a citation",
		Long: `Clip fetches the linked Discord messages and prints them as a
[!discord-cite] callout ready to paste into a note.

Messages are read with a bot token (WIKICORD_DISCORD_TOKEN) when one is set,
otherwise through a lookup endpoint queried as GET <api>?url=<message url>.
Without arguments, message links are read from standard input.

Examples:
  # Cite two messages and print the inline marker as well
  wikicord clip --marker https://discord.com/channels/1/2/3 https://discord.com/channels/1/2/4

  # Plain markdown quote instead of a citation
  pbpaste | wikicord clip --quote`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := a.messageURLs(args)
			if err != nil {
				return err
			}
			fetcher, err := newFetcher(a)
			if err != nil {
				return err
			}

			citation, err := fetch.NewClipper(fetcher, a.cfg.RequestsPerSecond, a.logger).Clip(cmd.Context(), urls)
			if err != nil {
				return err
			}

			if asQuote {
				_, err := io.WriteString(a.stdout, discord.FormatQuote(citation.Messages))
				return err
			}
			callout, err := discord.FormatCallout(citation)
			if err != nil {
				return err
			}
			if withMarker {
				if _, err := fmt.Fprintln(a.stdout, discord.MarkerFor(citation.ID)); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout)
			}
			_, err = io.WriteString(a.stdout, callout)
			return err
		},
	}
	cmd.Flags().BoolVar(&withMarker, "marker", false, "print the inline {{discord-cite:<id>}} marker before the callout")
	cmd.Flags().BoolVar(&asQuote, "quote", false, "print a plain markdown quote instead of a citation callout")
	config.RegisterClipFlags(cmd.Flags(), &a.cfg)
	return cmd
}

// messageURLs collects message links from args, or from stdin when no args
// are given. Arguments that are not links themselves are scanned for links.
func (a *app) messageURLs(args []string) ([]string, error) {
	if len(args) == 0 {
		raw, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		args = []string{string(raw)}
	}
	var urls []string
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if _, err := discord.ParseMessageURL(arg); err == nil {
			urls = append(urls, arg)
			continue
		}
		found := discord.ExtractMessageURLs(arg)
		if len(found) == 0 && arg != "" {
			return nil, fmt.Errorf("%q: %w", arg, discord.ErrInvalidMessageURL)
		}
		urls = append(urls, found...)
	}
	if len(urls) == 0 {
		return nil, errors.New("no discord message links given")
	}
	return urls, nil
}

func newFetcher(a *app) (fetch.Fetcher, error) {
	switch {
	case a.cfg.DiscordToken != "":
		return fetch.NewBotClient(a.cfg.DiscordToken)
	case a.cfg.APIEndpoint != "":
		return fetch.NewAPIClient(a.cfg.APIEndpoint, nil, a.logger)
	default:
		return nil, errors.New("no message source configured: set WIKICORD_DISCORD_TOKEN or --api")
	}
}
