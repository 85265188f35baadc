package discord

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidMessageURL reports text that is not a Discord message link.
var ErrInvalidMessageURL = errors.New("not a discord message url")

var messageURLPattern = regexp.MustCompile(`https?://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(@me|\d+)/(\d+)/(\d+)`)

// MessageRef locates one message on Discord.
type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
	URL       string
}

// JumpURL returns the canonical link to the message.
func (r MessageRef) JumpURL() string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", r.GuildID, r.ChannelID, r.MessageID)
}

// ParseMessageURL extracts the ids from a Discord message link. Direct
// messages use "@me" as the guild.
func ParseMessageURL(raw string) (MessageRef, error) {
	trimmed := strings.TrimSpace(raw)
	m := messageURLPattern.FindStringSubmatch(trimmed)
	if m == nil || m[0] != strings.TrimRight(trimmed, "/") {
		return MessageRef{}, fmt.Errorf("%w: %q", ErrInvalidMessageURL, raw)
	}
	return MessageRef{GuildID: m[1], ChannelID: m[2], MessageID: m[3], URL: m[0]}, nil
}

// ExtractMessageURLs returns every Discord message link found in text, in
// order of appearance, without duplicates.
func ExtractMessageURLs(text string) []string {
	matches := messageURLPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
