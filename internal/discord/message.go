// Package discord models Discord chat messages and renders them as HTML
// fragments for embedding in wiki pages.
package discord

import "strings"

const (
	// DefaultAvatarURL is used for messages whose payload carries no avatar.
	DefaultAvatarURL = "https://cdn.discordapp.com/embed/avatars/0.png"
	// UnknownAuthor is displayed when an author has neither display name nor username.
	UnknownAuthor = "Unknown User"
	// CitationName identifies citation callouts, directives, and markers.
	CitationName = "discord-cite"
	// FenceLanguage is the fenced code block language embedded as a thread.
	FenceLanguage = "discord"
)

// Author is the sender of a message. Every field is optional.
type Author struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
	// Color is a CSS color string, already normalized. Empty means inherit.
	Color string `json:"color,omitempty"`
}

// Name returns the label shown for the author.
func (a Author) Name() string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(a.Username); name != "" {
		return name
	}
	return UnknownAuthor
}

// Key identifies the author for grouping consecutive messages.
func (a Author) Key() string {
	if a.ID != "" {
		return "id:" + a.ID
	}
	return "name:" + a.Username + "|" + a.DisplayName
}

// Message is a single chat message ready for rendering.
type Message struct {
	ID        string `json:"id,omitempty"`
	Author    Author `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Avatar returns the avatar image URL, falling back to DefaultAvatarURL.
func (m Message) Avatar() string {
	if m.AvatarURL != "" {
		return m.AvatarURL
	}
	return DefaultAvatarURL
}

// Link returns the jump URL of the original message, or "#".
func (m Message) Link() string {
	if m.URL != "" {
		return m.URL
	}
	return "#"
}

// Citation is a named group of messages referenced by markers in prose.
type Citation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}
