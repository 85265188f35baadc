package discord

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Tags names the elements used for each part of a rendered thread.
type Tags struct {
	Wrapper string
	Message string
	Avatar  string
	Body    string
	Header  string
	Content string
}

var (
	// BlockTags renders a thread as block-level markup for direct embedding.
	BlockTags = Tags{
		Wrapper: "section",
		Message: "article",
		Avatar:  "div",
		Body:    "div",
		Header:  "header",
		Content: "div",
	}
	// InlineTags renders a thread with spans only, valid inside a paragraph.
	InlineTags = Tags{
		Wrapper: "span",
		Message: "span",
		Avatar:  "span",
		Body:    "span",
		Header:  "span",
		Content: "span",
	}
)

const (
	displayLayout = "02/01/2006 15:04"
	isoLayout     = "2006-01-02T15:04:05.000Z07:00"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// FormatTimestamp returns the display (DD/MM/YYYY HH:MM, UTC) and ISO-8601
// forms of source. Unparseable input is returned unchanged as both.
func FormatTimestamp(source string) (display, iso string) {
	trimmed := strings.TrimSpace(source)
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		t = t.UTC()
		return t.Format(displayLayout), t.Format(isoLayout)
	}
	return source, source
}

// RenderContent escapes message text and turns line breaks into <br>.
func RenderContent(content string) string {
	escaped := html.EscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// RenderThread renders messages as one HTML fragment. A message from the
// same author as the message directly before it is rendered compact: no
// avatar or header, with the timestamp kept for screen readers.
func RenderThread(messages []Message, tags Tags) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<%s class="discord-thread" data-message-count="%d">`, tags.Wrapper, len(messages))
	prevKey := ""
	for i, msg := range messages {
		key := msg.Author.Key()
		compact := i > 0 && key == prevKey
		renderMessage(&b, msg, tags, compact)
		prevKey = key
	}
	fmt.Fprintf(&b, `</%s>`, tags.Wrapper)
	return b.String()
}

func renderMessage(b *strings.Builder, msg Message, tags Tags, compact bool) {
	class := "discord-message"
	if compact {
		class += " discord-message--compact"
	}
	fmt.Fprintf(b, `<%s class="%s"`, tags.Message, class)
	if msg.ID != "" {
		fmt.Fprintf(b, ` data-message-id="%s"`, html.EscapeString(msg.ID))
	}
	if msg.Author.Color != "" {
		fmt.Fprintf(b, ` style="--discord-author-color: %s"`, html.EscapeString(msg.Author.Color))
	}
	b.WriteString(">")

	display, iso := FormatTimestamp(msg.Timestamp)
	if !compact {
		fmt.Fprintf(b, `<%s class="discord-avatar"><img src="%s" alt="" loading="lazy" width="40" height="40"></%s>`,
			tags.Avatar, html.EscapeString(msg.Avatar()), tags.Avatar)
	}

	fmt.Fprintf(b, `<%s class="discord-body">`, tags.Body)
	if compact {
		if msg.Timestamp != "" {
			fmt.Fprintf(b, `<span class="discord-sr-only"><time datetime="%s">%s</time></span>`,
				html.EscapeString(iso), html.EscapeString(display))
		}
	} else {
		fmt.Fprintf(b, `<%s class="discord-header">`, tags.Header)
		b.WriteString(`<span class="discord-author"`)
		if msg.Author.Color != "" {
			fmt.Fprintf(b, ` style="color: %s"`, html.EscapeString(msg.Author.Color))
		}
		fmt.Fprintf(b, `>%s</span>`, html.EscapeString(msg.Author.Name()))
		if msg.Timestamp != "" {
			fmt.Fprintf(b, `<a class="discord-timestamp" href="%s"><time datetime="%s">%s</time></a>`,
				html.EscapeString(msg.Link()), html.EscapeString(iso), html.EscapeString(display))
		}
		fmt.Fprintf(b, `</%s>`, tags.Header)
	}
	fmt.Fprintf(b, `<%s class="discord-content">%s</%s>`, tags.Content, RenderContent(msg.Content), tags.Content)
	fmt.Fprintf(b, `</%s>`, tags.Body)
	fmt.Fprintf(b, `</%s>`, tags.Message)
}

// CitationLabel is the accessible label of a citation trigger.
func CitationLabel(count int) string {
	if count == 1 {
		return "View Discord citation (1 message)"
	}
	return fmt.Sprintf("View Discord citation (%d messages)", count)
}

// RenderCitation renders an inline citation: a focusable trigger plus a
// preview panel holding the thread. Citations without messages render "".
func RenderCitation(c Citation) string {
	thread := RenderThread(c.Messages, InlineTags)
	if thread == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<span class="discord-cite" data-citation-id="%s">`, html.EscapeString(c.ID))
	fmt.Fprintf(&b, `<button type="button" class="discord-cite__trigger" aria-label="%s">`,
		html.EscapeString(CitationLabel(len(c.Messages))))
	fmt.Fprintf(&b, `<span class="discord-cite__count" aria-hidden="true">%d</span>`, len(c.Messages))
	b.WriteString(`</button>`)
	b.WriteString(`<span class="discord-cite__preview" role="tooltip">`)
	b.WriteString(thread)
	b.WriteString(`</span></span>`)
	return b.String()
}
