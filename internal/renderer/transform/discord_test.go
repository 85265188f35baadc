package transform_test

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/euforicio/wikicord/internal/discord"
	"github.com/euforicio/wikicord/internal/renderer/transform"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithParserOptions(
			parser.WithBlockParsers(util.Prioritized(transform.NewDirectiveParser(), 650)),
			parser.WithASTTransformers(
				util.Prioritized(transform.NewCalloutTransformer(), 50),
				util.Prioritized(transform.NewDiscordTransformer(quietLogger()), 60),
			),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			gmrenderer.WithNodeRenderers(
				util.Prioritized(transform.NewDiscordRenderer(), 100),
				util.Prioritized(transform.NewDirectiveRenderer(), 100),
			),
		),
	)
}

func convert(t *testing.T, src string) (string, transform.DiscordStats) {
	t.Helper()
	pc := parser.NewContext()
	pc.Set(transform.DocumentPathKey, "notes/test.md")
	var buf bytes.Buffer
	if err := newMarkdown().Convert([]byte(src), &buf, parser.WithContext(pc)); err != nil {
		t.Fatalf("convert: %v", err)
	}
	return buf.String(), transform.DiscordStatsFromContext(pc)
}

const aliceCallout = "> [!discord-cite]- Discord citation (1 message)\n" +
	"> **alice**: hi\n" +
	"> ```json\n" +
	"> {\"id\":\"cite-abc\",\"messages\":[{\"author\":{\"username\":\"alice\"},\"content\":\"hi\"}]}\n" +
	"> ```\n"

func TestCitationCalloutResolvesMarker(t *testing.T) {
	t.Parallel()

	out, stats := convert(t, aliceCallout+"\nSee <!-- discord-cite:cite-abc --> for context.\n")

	if strings.Contains(out, "[!discord-cite]") || strings.Contains(out, "<blockquote") {
		t.Fatalf("expected citation callout to be removed, got %s", out)
	}
	if !strings.Contains(out, `aria-label="View Discord citation (1 message)"`) {
		t.Fatalf("expected citation trigger, got %s", out)
	}
	if !strings.Contains(out, `<p>See <span class="discord-cite" data-citation-id="cite-abc">`) {
		t.Fatalf("expected marker replaced in place, got %s", out)
	}
	if !strings.Contains(out, "</span></span> for context.</p>") {
		t.Fatalf("expected trailing text preserved, got %s", out)
	}
	if stats.Citations != 1 || stats.Markers != 1 || stats.Embeds != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCitationDefinedAfterMarker(t *testing.T) {
	t.Parallel()

	src := "<!-- discord-cite:cite-abc -->\n\nSome prose.\n\n" + aliceCallout
	out, _ := convert(t, src)

	thread := strings.Index(out, `data-citation-id="cite-abc"`)
	prose := strings.Index(out, "Some prose.")
	if thread < 0 {
		t.Fatalf("expected forward reference to resolve, got %s", out)
	}
	if prose < thread {
		t.Fatalf("expected citation at the marker position before the prose, got %s", out)
	}
	if strings.Contains(out, "discord-cite:cite-abc") {
		t.Fatalf("expected marker comment to be replaced, got %s", out)
	}
}

func TestBraceMarkerWithSoftBreak(t *testing.T) {
	t.Parallel()

	out, _ := convert(t, aliceCallout+"\nBefore {{discord-cite:cite-abc}} after\nnext line\n")

	if !strings.Contains(out, "<p>Before <span class=\"discord-cite\"") {
		t.Fatalf("expected leading text kept, got %s", out)
	}
	if !strings.Contains(out, "</span></span> after\nnext line</p>") {
		t.Fatalf("expected trailing text and line break kept, got %s", out)
	}
}

func TestMarkerAtEndOfLineKeepsBreak(t *testing.T) {
	t.Parallel()

	out, _ := convert(t, aliceCallout+"\nQuoted {{discord-cite:cite-abc}}\nnext line\n")

	if !strings.Contains(out, "</span></span>\nnext line</p>") {
		t.Fatalf("expected soft break after citation, got %s", out)
	}
}

func TestUnknownMarkerLeftLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{name: "no citations", src: "See {{discord-cite:missing}} here.\n"},
		{name: "other citation", src: aliceCallout + "\nSee {{discord-cite:missing}} here.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, stats := convert(t, tt.src)
			if !strings.Contains(out, "See {{discord-cite:missing}} here.") {
				t.Fatalf("expected literal marker, got %s", out)
			}
			if stats.Markers != 0 {
				t.Fatalf("expected no substitutions, got %+v", stats)
			}
		})
	}
}

func TestMarkerInCodeSpanUntouched(t *testing.T) {
	t.Parallel()

	out, _ := convert(t, aliceCallout+"\nWrite `{{discord-cite:cite-abc}}` to cite.\n")

	if !strings.Contains(out, "<code>{{discord-cite:cite-abc}}</code>") {
		t.Fatalf("expected marker in code span to stay literal, got %s", out)
	}
}

func TestInvalidCalloutLeftVisible(t *testing.T) {
	t.Parallel()

	src := "> [!discord-cite]- Broken\n" +
		"> ```json\n" +
		"> {\"id\": \"cite-bad\", \"messages\": [\n" +
		"> ```\n\n" +
		"See {{discord-cite:cite-bad}}.\n"
	out, stats := convert(t, src)

	if !strings.Contains(out, "<blockquote") {
		t.Fatalf("expected malformed callout to stay in the document, got %s", out)
	}
	if !strings.Contains(out, "{{discord-cite:cite-bad}}") {
		t.Fatalf("expected marker to stay literal, got %s", out)
	}
	if stats.Citations != 0 {
		t.Fatalf("expected no citations, got %+v", stats)
	}
}

func TestCalloutWithoutMessagesLeftVisible(t *testing.T) {
	t.Parallel()

	src := "> [!discord-cite]- Empty\n" +
		"> ```json\n" +
		"> {\"id\": \"cite-empty\", \"messages\": []}\n" +
		"> ```\n"
	out, _ := convert(t, src)
	if !strings.Contains(out, "cite-empty") {
		t.Fatalf("expected empty citation to stay visible, got %s", out)
	}
}

func TestCalloutWithoutMessageFieldsLeftVisible(t *testing.T) {
	t.Parallel()

	f := func(id, payload string) {
		t.Helper()
		src := "> [!discord-cite]- Broken\n" +
			"> ```json\n" +
			"> " + payload + "\n" +
			"> ```\n\n" +
			"See {{discord-cite:" + id + "}} here.\n"
		out, stats := convert(t, src)
		if !strings.Contains(out, "<blockquote") || !strings.Contains(out, "{{discord-cite:"+id+"}}") {
			t.Fatalf("expected callout and marker to stay visible for %s, got %s", payload, out)
		}
		if strings.Contains(out, "Unknown User") || stats.Citations != 0 || stats.Markers != 0 {
			t.Fatalf("expected no citation resolved for %s, got stats %+v and %s", payload, stats, out)
		}
	}

	f("x", `{"id": "x"}`)
	f("y", `{"id": "y", "messages": "oops"}`)
}

func TestDirectiveCitationWithSingleMessage(t *testing.T) {
	t.Parallel()

	src := ":::discord-cite\n" +
		"```json\n" +
		"{\"id\":\"d1\",\"content\":\"single\",\"author\":{\"username\":\"bob\"}}\n" +
		"```\n" +
		":::\n\n" +
		"Cited {{discord-cite:d1}}.\n"
	out, stats := convert(t, src)

	if strings.Contains(out, "directive-discord-cite") {
		t.Fatalf("expected directive citation removed, got %s", out)
	}
	if !strings.Contains(out, `data-citation-id="d1"`) || !strings.Contains(out, ">single<") {
		t.Fatalf("expected single-message citation rendered, got %s", out)
	}
	if stats.Citations != 1 || stats.Markers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDuplicateCitationLastWins(t *testing.T) {
	t.Parallel()

	callout := func(content string) string {
		return "> [!discord-cite]-\n" +
			"> ```json\n" +
			"> {\"id\":\"dup\",\"messages\":[{\"author\":{\"username\":\"carol\"},\"content\":\"" + content + "\"}]}\n" +
			"> ```\n\n"
	}
	out, _ := convert(t, callout("first")+callout("second")+"{{discord-cite:dup}}\n")

	if strings.Contains(out, ">first<") {
		t.Fatalf("expected earlier definition to be replaced, got %s", out)
	}
	if !strings.Contains(out, ">second<") {
		t.Fatalf("expected later definition to win, got %s", out)
	}
}

func TestDiscordFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		src       string
		wantCount string
		wantCode  bool
	}{
		{
			name:      "array",
			src:       "```discord\n[{\"author\":{\"username\":\"a\"},\"content\":\"one\"},{\"author\":{\"username\":\"b\"},\"content\":\"two\"}]\n```\n",
			wantCount: `data-message-count="2"`,
		},
		{
			name:      "single object",
			src:       "```discord\n{\"author\":{\"username\":\"a\"},\"content\":\"one\"}\n```\n",
			wantCount: `data-message-count="1"`,
		},
		{
			name:      "wrapper with uppercase language",
			src:       "```DISCORD\n{\"messages\":[{\"author\":{\"username\":\"a\"},\"content\":\"one\"}]}\n```\n",
			wantCount: `data-message-count="1"`,
		},
		{
			name:     "empty array",
			src:      "```discord\n[]\n```\n",
			wantCode: true,
		},
		{
			name:     "invalid json",
			src:      "```discord\n[{\n```\n",
			wantCode: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, stats := convert(t, tt.src)
			if tt.wantCode {
				if !strings.Contains(out, "<pre><code class=\"language-discord\">") {
					t.Fatalf("expected fence left as code, got %s", out)
				}
				if stats.Embeds != 0 {
					t.Fatalf("expected no embeds, got %+v", stats)
				}
				return
			}
			if !strings.Contains(out, `<section class="discord-thread" `+tt.wantCount) {
				t.Fatalf("expected embedded thread with %s, got %s", tt.wantCount, out)
			}
			if strings.Contains(out, "<pre>") || strings.Contains(out, "<p><section") {
				t.Fatalf("expected fence replaced without wrapper, got %s", out)
			}
			if stats.Embeds != 1 {
				t.Fatalf("expected one embed, got %+v", stats)
			}
		})
	}
}

func TestClassifyCallout(t *testing.T) {
	t.Parallel()

	md := goldmark.New()
	parse := func(src string) (ast.Node, []byte) {
		source := []byte(src)
		doc := md.Parser().Parse(text.NewReader(source))
		return doc.FirstChild(), source
	}

	textPrefix, textSource := parse("> [!DISCORD-CITE]- Discord citation\n> body\n")
	plain, plainSource := parse("> just a quote\n")
	note, noteSource := parse("> [!note] Not a citation\n")

	tagged := ast.NewBlockquote()
	tagged.SetAttributeString(transform.CalloutAttribute, []byte("discord-cite"))

	directive := &transform.Directive{Name: "discord-cite"}
	both := &transform.Directive{Name: "discord-cite"}
	both.SetAttributeString(transform.CalloutAttribute, []byte("discord-cite"))
	other := &transform.Directive{Name: "note"}

	tests := []struct {
		name   string
		node   ast.Node
		source []byte
		want   transform.CalloutMatch
	}{
		{name: "attribute", node: tagged, want: transform.ByAttribute},
		{name: "directive", node: directive, want: transform.ByDirective},
		{name: "attribute beats directive", node: both, want: transform.ByAttribute},
		{name: "text prefix", node: textPrefix, source: textSource, want: transform.ByTextPrefix},
		{name: "plain quote", node: plain, source: plainSource, want: transform.NotACitation},
		{name: "other callout", node: note, source: noteSource, want: transform.NotACitation},
		{name: "other directive", node: other, want: transform.NotACitation},
		{name: "inline node", node: ast.NewText(), want: transform.NotACitation},
		{name: "nil", node: nil, want: transform.NotACitation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := transform.ClassifyCallout(tt.node, tt.source); got != tt.want {
				t.Fatalf("ClassifyCallout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectCitationsRemovesOnlyMatches(t *testing.T) {
	t.Parallel()

	source := []byte("Intro.\n\n" + aliceCallout + "\nOutro.\n")
	doc := goldmark.New(goldmark.WithParserOptions(
		parser.WithASTTransformers(util.Prioritized(transform.NewCalloutTransformer(), 50)),
	)).Parser().Parse(text.NewReader(source))

	citations := transform.CollectCitations(doc, source, quietLogger())
	if len(citations) != 1 {
		t.Fatalf("expected one citation, got %d", len(citations))
	}
	c, ok := citations["cite-abc"]
	if !ok || len(c.Messages) != 1 || c.Messages[0].Author.Username != "alice" {
		t.Fatalf("unexpected citation: %+v", c)
	}
	if doc.ChildCount() != 2 {
		t.Fatalf("expected the two paragraphs to remain, got %d children", doc.ChildCount())
	}
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if _, ok := child.(*ast.Paragraph); !ok {
			t.Fatalf("unexpected remaining node %s", child.Kind())
		}
	}
}

func TestFormattedCalloutRendersBack(t *testing.T) {
	t.Parallel()

	citation := discord.Citation{
		ID: "cite-round",
		Messages: []discord.Message{
			{ID: "1", Author: discord.Author{ID: "7", Username: "alice"}, Content: "first [link](x) *emph*", Timestamp: "2024-03-05T14:07:00Z"},
			{ID: "2", Author: discord.Author{ID: "7", Username: "alice"}, Content: "second"},
		},
	}
	callout, err := discord.FormatCallout(citation)
	if err != nil {
		t.Fatalf("FormatCallout: %v", err)
	}

	out, stats := convert(t, "Quoted "+discord.MarkerFor(citation.ID)+".\n\n"+callout)
	if stats.Citations != 1 || stats.Markers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !strings.Contains(out, discord.RenderCitation(citation)) {
		t.Fatalf("expected the original thread rendered at the marker, got %s", out)
	}
}
