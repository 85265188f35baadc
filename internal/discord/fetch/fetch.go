// Package fetch retrieves Discord messages for clipping into notes, either
// through a hosted lookup API or directly from Discord with a bot token.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/euforicio/wikicord/internal/discord"
)

// ErrNotFound reports a message the source could not find.
var ErrNotFound = errors.New("message not found")

// Fetcher loads a single message.
type Fetcher interface {
	Fetch(ctx context.Context, ref discord.MessageRef) (discord.Message, error)
}

const maxResponseBytes = 1 << 20

// APIClient queries a lookup endpoint with GET {endpoint}?url=<message url>.
type APIClient struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewAPIClient returns a client for endpoint. A nil httpClient uses a
// client with a 15 second timeout.
func NewAPIClient(endpoint string, httpClient *http.Client, logger *slog.Logger) (*APIClient, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid api endpoint %q", endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		endpoint: parsed.String(),
		client:   httpClient,
		logger:   logger.With("component", "fetch"),
	}, nil
}

// Fetch implements Fetcher.
func (c *APIClient) Fetch(ctx context.Context, ref discord.MessageRef) (discord.Message, error) {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		return discord.Message{}, fmt.Errorf("parse endpoint: %w", err)
	}
	query := target.Query()
	query.Set("url", ref.URL)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return discord.Message{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return discord.Message{}, fmt.Errorf("request message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return discord.Message{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return discord.Message{}, fmt.Errorf("%s: %w", ref.URL, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return discord.Message{}, fmt.Errorf("api returned %d: %s", resp.StatusCode, apiErrorText(body))
	}

	messages, err := discord.ParseMessages(body)
	if err != nil {
		return discord.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if len(messages) == 0 {
		return discord.Message{}, fmt.Errorf("%s: %w", ref.URL, discord.ErrNoMessages)
	}
	if len(messages) > 1 {
		c.logger.Debug("api returned several messages, keeping the first", slog.Int("count", len(messages)))
	}

	msg := messages[0]
	if msg.URL == "" {
		msg.URL = ref.URL
	}
	return msg, nil
}

func apiErrorText(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// messageSource is the part of a discordgo session BotClient needs.
type messageSource interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// BotClient reads messages straight from the Discord REST API.
type BotClient struct {
	source messageSource
}

// NewBotClient opens a REST-only session for token. No gateway connection
// is made.
func NewBotClient(token string) (*BotClient, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord bot token is required")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &BotClient{source: session}, nil
}

// Fetch implements Fetcher.
func (c *BotClient) Fetch(ctx context.Context, ref discord.MessageRef) (discord.Message, error) {
	msg, err := c.source.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return discord.Message{}, fmt.Errorf("%s: %w", ref.URL, ErrNotFound)
		}
		return discord.Message{}, fmt.Errorf("fetch channel message: %w", err)
	}
	return FromDiscordgo(msg, ref), nil
}

// FromDiscordgo maps a discordgo message onto the render model.
func FromDiscordgo(msg *discordgo.Message, ref discord.MessageRef) discord.Message {
	out := discord.Message{
		ID:      msg.ID,
		Content: msg.Content,
		URL:     ref.JumpURL(),
	}
	if !msg.Timestamp.IsZero() {
		out.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	if msg.Author != nil {
		out.Author = discord.Author{
			ID:          msg.Author.ID,
			Username:    msg.Author.Username,
			DisplayName: msg.Author.GlobalName,
		}
		if msg.Author.AccentColor != 0 {
			out.Author.Color, _ = discord.NormalizeColor(msg.Author.AccentColor)
		}
		out.AvatarURL = msg.Author.AvatarURL("64")
	}
	if msg.Member != nil && msg.Member.Nick != "" {
		out.Author.DisplayName = msg.Member.Nick
	}
	return out
}
