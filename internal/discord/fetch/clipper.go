package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/euforicio/wikicord/internal/discord"
)

// Clipper turns Discord message links into citations, pacing requests so
// long clips do not trip upstream rate limits.
type Clipper struct {
	fetcher Fetcher
	limiter *rate.Limiter
	logger  *slog.Logger
	newID   func() string
}

// NewClipper wraps fetcher with a limiter allowing perSecond requests.
func NewClipper(fetcher Fetcher, perSecond float64, logger *slog.Logger) *Clipper {
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Clipper{
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.With("component", "clip"),
		newID:   discord.NewCitationID,
	}
}

// Clip fetches every url in order and returns them as one citation.
func (c *Clipper) Clip(ctx context.Context, urls []string) (discord.Citation, error) {
	if len(urls) == 0 {
		return discord.Citation{}, errors.New("at least one message url is required")
	}
	refs := make([]discord.MessageRef, 0, len(urls))
	for _, raw := range urls {
		ref, err := discord.ParseMessageURL(raw)
		if err != nil {
			return discord.Citation{}, err
		}
		refs = append(refs, ref)
	}

	citation := discord.Citation{ID: c.newID()}
	for _, ref := range refs {
		if err := c.limiter.Wait(ctx); err != nil {
			return discord.Citation{}, fmt.Errorf("wait for rate limiter: %w", err)
		}
		msg, err := c.fetcher.Fetch(ctx, ref)
		if err != nil {
			return discord.Citation{}, fmt.Errorf("fetch %s: %w", ref.URL, err)
		}
		c.logger.Debug("fetched message",
			slog.String("message", ref.MessageID),
			slog.String("author", msg.Author.Name()))
		citation.Messages = append(citation.Messages, msg)
	}
	return citation, nil
}
