package discord_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/euforicio/wikicord/internal/discord"
)

func TestParseMessageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want discord.MessageRef
		err  bool
	}{
		{
			name: "guild message",
			raw:  "https://discord.com/channels/111/222/333",
			want: discord.MessageRef{GuildID: "111", ChannelID: "222", MessageID: "333", URL: "https://discord.com/channels/111/222/333"},
		},
		{
			name: "direct message with trailing slash",
			raw:  "  https://discord.com/channels/@me/222/333/ ",
			want: discord.MessageRef{GuildID: "@me", ChannelID: "222", MessageID: "333", URL: "https://discord.com/channels/@me/222/333"},
		},
		{
			name: "canary discordapp host",
			raw:  "https://canary.discordapp.com/channels/1/2/3",
			want: discord.MessageRef{GuildID: "1", ChannelID: "2", MessageID: "3", URL: "https://canary.discordapp.com/channels/1/2/3"},
		},
		{name: "channel only", raw: "https://discord.com/channels/111/222", err: true},
		{name: "other host", raw: "https://example.com/channels/1/2/3", err: true},
		{name: "embedded in text", raw: "see https://discord.com/channels/1/2/3", err: true},
		{name: "empty", raw: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := discord.ParseMessageURL(tt.raw)
			if tt.err {
				if !errors.Is(err, discord.ErrInvalidMessageURL) {
					t.Fatalf("expected ErrInvalidMessageURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessageURL: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMessageRefJumpURL(t *testing.T) {
	t.Parallel()

	ref, err := discord.ParseMessageURL("https://ptb.discord.com/channels/1/2/3")
	if err != nil {
		t.Fatalf("ParseMessageURL: %v", err)
	}
	if got := ref.JumpURL(); got != "https://discord.com/channels/1/2/3" {
		t.Fatalf("JumpURL = %q", got)
	}
}

func TestExtractMessageURLs(t *testing.T) {
	t.Parallel()

	text := "first https://discord.com/channels/1/2/3, then (https://discord.com/channels/1/2/4)\n" +
		"again https://discord.com/channels/1/2/3 and https://discord.com/channels/1/2 not a message"
	got := discord.ExtractMessageURLs(text)
	want := []string{
		"https://discord.com/channels/1/2/3",
		"https://discord.com/channels/1/2/4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractMessageURLs = %v, want %v", got, want)
	}
	if got := discord.ExtractMessageURLs("nothing here"); len(got) != 0 {
		t.Fatalf("expected no urls, got %v", got)
	}
}
