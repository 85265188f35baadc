package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	formatting "github.com/delthas/discord-formatting"
	"github.com/google/uuid"
)

const summaryLimit = 120

// NewCitationID returns a fresh id of the form cite-<time>-<random>.
func NewCitationID() string {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 36)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return "cite-" + stamp + "-" + random
}

// MarkerFor returns the inline marker that references citation id.
func MarkerFor(id string) string {
	return "{{" + CitationName + ":" + id + "}}"
}

// FormatCallout renders a citation as the Markdown callout block that the
// document transform collects: a title line, one summary line per message,
// and the authoritative JSON payload in a fenced block.
func FormatCallout(c Citation) (string, error) {
	if len(c.Messages) == 0 {
		return "", ErrNoMessages
	}
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode citation: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "> [!%s]- %s\n", CitationName, calloutTitle(len(c.Messages)))
	for _, msg := range c.Messages {
		fmt.Fprintf(&b, "> **%s**", escapeMarkdown(msg.Author.Name()))
		if msg.Timestamp != "" {
			display, _ := FormatTimestamp(msg.Timestamp)
			fmt.Fprintf(&b, " (%s)", display)
		}
		if summary := Summary(msg.Content, summaryLimit); summary != "" {
			fmt.Fprintf(&b, ": %s", escapeMarkdown(summary))
		}
		b.WriteString("\n")
	}
	b.WriteString(">\n> ```json\n> ")
	b.WriteString(strings.TrimSpace(payload.String()))
	b.WriteString("\n> ```\n")
	return b.String(), nil
}

// FormatQuote renders messages as a plain Markdown quote with a jump link,
// for pasting into notes without the citation machinery.
func FormatQuote(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "> **%s**", escapeMarkdown(msg.Author.Name()))
		if msg.Timestamp != "" {
			display, _ := FormatTimestamp(msg.Timestamp)
			fmt.Fprintf(&b, " · %s", display)
		}
		b.WriteString("\n")
		for _, line := range strings.Split(strings.ReplaceAll(msg.Content, "\r\n", "\n"), "\n") {
			if line == "" {
				b.WriteString(">\n")
				continue
			}
			fmt.Fprintf(&b, "> %s\n", line)
		}
		if msg.URL != "" {
			fmt.Fprintf(&b, ">\n> [Jump to message](%s)\n", msg.URL)
		}
	}
	return b.String()
}

func calloutTitle(count int) string {
	if count == 1 {
		return "Discord citation (1 message)"
	}
	return fmt.Sprintf("Discord citation (%d messages)", count)
}

// PlainText flattens Discord message markup (emphasis, spoilers, mentions,
// masked links, timestamps) into readable plain text on a single line.
func PlainText(content string) string {
	root := formatting.NewParser(nil).Parse(content)
	var b strings.Builder
	formatting.Walk(root, func(n formatting.Node, entering bool) {
		if !entering {
			return
		}
		switch node := n.(type) {
		case *formatting.TextNode:
			b.WriteString(node.Content)
		case *formatting.CodeNode:
			b.WriteString(node.Content)
		case *formatting.URLNode:
			if node.Mask != "" {
				b.WriteString(node.Mask)
			} else {
				b.WriteString(node.URL)
			}
		case *formatting.EmojiNode:
			b.WriteString(":" + node.Text + ":")
		case *formatting.UserMentionNode:
			b.WriteString("@" + node.ID)
		case *formatting.RoleMentionNode:
			b.WriteString("@" + node.ID)
		case *formatting.ChannelMentionNode:
			b.WriteString("#" + node.ID)
		case *formatting.SpecialMentionNode:
			b.WriteString("@" + node.Mention)
		case *formatting.TimestampNode:
			if secs, err := strconv.ParseInt(node.Stamp, 10, 64); err == nil {
				b.WriteString(time.Unix(secs, 0).UTC().Format(displayLayout))
			} else {
				b.WriteString(node.Stamp)
			}
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// Summary returns the plain text of content cut to at most limit runes.
func Summary(content string, limit int) string {
	text := PlainText(content)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
