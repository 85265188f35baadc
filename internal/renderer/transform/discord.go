package transform

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/euforicio/wikicord/internal/discord"
)

// CalloutMatch reports how a node was recognised as a citation callout.
type CalloutMatch int

// Detection order is attribute, then directive name, then text prefix.
const (
	NotACitation CalloutMatch = iota
	ByAttribute
	ByDirective
	ByTextPrefix
)

func (m CalloutMatch) String() string {
	switch m {
	case ByAttribute:
		return "attribute"
	case ByDirective:
		return "directive"
	case ByTextPrefix:
		return "text-prefix"
	default:
		return "none"
	}
}

const citationPrefix = "[!" + discord.CitationName

var markerPattern = regexp.MustCompile(`(?i)\{\{discord-cite:([a-z0-9-]+)\}\}|<!--\s*discord-cite:([a-z0-9-]+)\s*-->`)

// ClassifyCallout decides whether node declares a Discord citation.
func ClassifyCallout(node ast.Node, source []byte) CalloutMatch {
	if node == nil || node.Type() != ast.TypeBlock {
		return NotACitation
	}
	if strings.EqualFold(attributeString(node, CalloutAttribute), discord.CitationName) {
		return ByAttribute
	}
	if d, ok := node.(*Directive); ok && strings.EqualFold(d.Name, discord.CitationName) {
		return ByDirective
	}
	if quote, ok := node.(*ast.Blockquote); ok {
		if para, ok := quote.FirstChild().(*ast.Paragraph); ok {
			head := strings.TrimSpace(inlineText(para, source))
			if strings.HasPrefix(strings.ToLower(head), citationPrefix) {
				return ByTextPrefix
			}
		}
	}
	return NotACitation
}

// CollectCitations finds every citation callout below doc, records its
// payload by id, and removes it from the tree. Callouts whose payload is
// missing or unusable are logged and left in place.
func CollectCitations(doc ast.Node, source []byte, logger *slog.Logger) map[string]discord.Citation {
	if logger == nil {
		logger = slog.Default()
	}
	citations := make(map[string]discord.Citation)
	collectCitations(doc, source, logger, citations)
	return citations
}

func collectCitations(parent ast.Node, source []byte, logger *slog.Logger, out map[string]discord.Citation) {
	var removed map[ast.Node]struct{}
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if match := ClassifyCallout(child, source); match != NotACitation {
			if citation, ok := parseCallout(child, source, match, logger); ok {
				if _, dup := out[citation.ID]; dup {
					logger.Warn("duplicate citation id, keeping the later definition",
						slog.String("id", citation.ID))
				}
				out[citation.ID] = citation
				if removed == nil {
					removed = make(map[ast.Node]struct{})
				}
				removed[child] = struct{}{}
				continue
			}
		}
		if child.HasChildren() {
			collectCitations(child, source, logger, out)
		}
	}
	if len(removed) == 0 {
		return
	}

	kept := make([]ast.Node, 0, parent.ChildCount())
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if _, drop := removed[child]; !drop {
			kept = append(kept, child)
		}
	}
	parent.RemoveChildren(parent)
	for _, child := range kept {
		parent.AppendChild(parent, child)
	}
}

func parseCallout(node ast.Node, source []byte, match CalloutMatch, logger *slog.Logger) (discord.Citation, bool) {
	block := firstFence(node)
	if block == nil {
		logger.Warn("citation callout has no payload block", slog.String("match", match.String()))
		return discord.Citation{}, false
	}
	citation, err := discord.ParseCitation(linesSource(block, source))
	if err != nil {
		logger.Warn("skipping citation callout",
			slog.String("match", match.String()),
			slog.String("err", err.Error()))
		return discord.Citation{}, false
	}
	return citation, true
}

func firstFence(node ast.Node) ast.Node {
	var found ast.Node
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			found = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// SubstituteMarkers replaces citation markers in prose, inline HTML, and
// HTML blocks with rendered citation previews. Markers naming unknown
// citations stay as written. It returns the number of markers replaced.
func SubstituteMarkers(doc ast.Node, source []byte, citations map[string]discord.Citation) int {
	if len(citations) == 0 {
		return 0
	}
	s := &substitution{
		source:    source,
		citations: citations,
		rendered:  make(map[string]string, len(citations)),
	}
	s.walk(doc)
	return s.count
}

type substitution struct {
	source    []byte
	citations map[string]discord.Citation
	rendered  map[string]string
	count     int
}

func (s *substitution) render(id string) string {
	if out, ok := s.rendered[id]; ok {
		return out
	}
	out := ""
	if c, ok := s.citations[id]; ok {
		out = discord.RenderCitation(c)
	}
	s.rendered[id] = out
	return out
}

// expand rewrites every known marker in value, returning the rewritten text
// and how many markers it replaced.
func (s *substitution) expand(value string) (string, int) {
	n := 0
	out := markerPattern.ReplaceAllStringFunc(value, func(marker string) string {
		if html := s.render(markerID(marker)); html != "" {
			n++
			return html
		}
		return marker
	})
	return out, n
}

func markerID(marker string) string {
	m := markerPattern.FindStringSubmatch(marker)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func (s *substitution) walk(parent ast.Node) {
	for child := parent.FirstChild(); child != nil; {
		next := child.NextSibling()
		switch typed := child.(type) {
		case *ast.CodeSpan, *ast.FencedCodeBlock, *ast.CodeBlock, *DiscordBlock, *DiscordInline:
		case *ast.Text:
			s.splitText(parent, typed)
		case *ast.String:
			s.splitString(parent, typed)
		case *ast.RawHTML:
			raw := string(typed.Segments.Value(s.source))
			if out, n := s.expand(raw); n > 0 {
				s.count += n
				parent.ReplaceChild(parent, typed, &DiscordInline{HTML: out})
			}
		case *ast.HTMLBlock:
			raw := string(linesSource(typed, s.source))
			if typed.HasClosure() {
				raw += string(typed.ClosureLine.Value(s.source))
			}
			if out, n := s.expand(raw); n > 0 {
				s.count += n
				replacement := &DiscordBlock{HTML: out}
				replacement.SetBlankPreviousLines(typed.HasBlankPreviousLines())
				parent.ReplaceChild(parent, typed, replacement)
			}
		default:
			if child.HasChildren() {
				s.walk(child)
			}
		}
		child = next
	}
}

// piece is either literal text (html empty) or a rendered citation.
type piece struct {
	start, stop int
	html        string
}

func (s *substitution) pieces(value string) []piece {
	matches := markerPattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return nil
	}
	var out []piece
	last, replaced := 0, false
	for _, m := range matches {
		var id string
		if m[2] >= 0 {
			id = value[m[2]:m[3]]
		} else {
			id = value[m[4]:m[5]]
		}
		html := s.render(id)
		if html == "" {
			continue
		}
		if m[0] > last {
			out = append(out, piece{start: last, stop: m[0]})
		}
		out = append(out, piece{start: m[0], stop: m[1], html: html})
		last = m[1]
		replaced = true
		s.count++
	}
	if !replaced {
		return nil
	}
	if last < len(value) {
		out = append(out, piece{start: last, stop: len(value)})
	}
	return out
}

func (s *substitution) splitText(parent ast.Node, node *ast.Text) {
	value := node.Segment.Value(s.source)
	parts := s.pieces(string(value))
	if parts == nil {
		return
	}
	var tail ast.Node
	for _, p := range parts {
		var fragment ast.Node
		switch {
		case p.html != "":
			fragment = &DiscordInline{HTML: p.html}
		case node.Segment.Padding == 0:
			t := ast.NewTextSegment(text.NewSegment(node.Segment.Start+p.start, node.Segment.Start+p.stop))
			t.SetRaw(node.IsRaw())
			fragment = t
		default:
			fragment = ast.NewString(append([]byte(nil), value[p.start:p.stop]...))
		}
		parent.InsertBefore(parent, node, fragment)
		tail = fragment
	}
	carryLineBreak(tail, node.SoftLineBreak(), node.HardLineBreak())
	parent.RemoveChild(parent, node)
}

func (s *substitution) splitString(parent ast.Node, node *ast.String) {
	if node.IsCode() {
		return
	}
	parts := s.pieces(string(node.Value))
	if parts == nil {
		return
	}
	for _, p := range parts {
		var fragment ast.Node
		if p.html != "" {
			fragment = &DiscordInline{HTML: p.html}
		} else {
			str := ast.NewString(append([]byte(nil), node.Value[p.start:p.stop]...))
			str.SetRaw(node.IsRaw())
			fragment = str
		}
		parent.InsertBefore(parent, node, fragment)
	}
	parent.RemoveChild(parent, node)
}

func carryLineBreak(n ast.Node, soft, hard bool) {
	switch typed := n.(type) {
	case *ast.Text:
		typed.SetSoftLineBreak(soft)
		typed.SetHardLineBreak(hard)
	case *DiscordInline:
		typed.SoftLineBreak = soft
		typed.HardLineBreak = hard
	case *ast.String:
		if hard || soft {
			typed.Value = append(typed.Value, '\n')
		}
	}
}

// EmbedDiscordFences replaces ```discord fences with rendered threads. A
// fence that yields no messages is left as a code block. It returns the
// number of fences embedded.
func EmbedDiscordFences(doc ast.Node, source []byte, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	var blocks []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if block, ok := n.(*ast.FencedCodeBlock); ok {
			if strings.EqualFold(strings.TrimSpace(string(block.Language(source))), discord.FenceLanguage) {
				blocks = append(blocks, block)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	embedded := 0
	for _, block := range blocks {
		messages, err := discord.ParseMessages(linesSource(block, source))
		if err != nil {
			logger.Warn("invalid discord block, leaving it as code", slog.String("err", err.Error()))
			continue
		}
		if len(messages) == 0 {
			logger.Debug("discord block has no messages")
			continue
		}
		replacement := &DiscordBlock{
			HTML:     discord.RenderThread(messages, discord.BlockTags),
			Messages: len(messages),
		}
		target := block.Parent()
		var old ast.Node = block
		if isWrapper(target) && target.ChildCount() == 1 && target.Parent() != nil {
			old = target
			target = target.Parent()
		}
		replacement.SetBlankPreviousLines(old.HasBlankPreviousLines())
		copyAttributes(block, replacement)
		target.ReplaceChild(target, old, replacement)
		embedded++
	}
	return embedded
}

func isWrapper(n ast.Node) bool {
	switch n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return true
	}
	return false
}

// DiscordStats counts what the Discord transformer did to one document.
type DiscordStats struct {
	Citations int `json:"citations"`
	Markers   int `json:"markers"`
	Embeds    int `json:"embeds"`
}

// IsZero reports whether the document contained no Discord content.
func (s DiscordStats) IsZero() bool {
	return s.Citations == 0 && s.Markers == 0 && s.Embeds == 0
}

var discordStatsKey = parser.NewContextKey()

// DiscordStatsFromContext returns the stats recorded for the parsed document.
func DiscordStatsFromContext(pc parser.Context) DiscordStats {
	if pc == nil {
		return DiscordStats{}
	}
	stats, _ := pc.Get(discordStatsKey).(DiscordStats)
	return stats
}

// DiscordTransformer resolves citation callouts and markers, then embeds
// ```discord fences. Citations are collected from the whole document before
// any marker is resolved, so definitions may follow their references.
type DiscordTransformer struct {
	logger *slog.Logger
}

// NewDiscordTransformer constructs the transformer. A nil logger uses the
// default slog logger.
func NewDiscordTransformer(logger *slog.Logger) parser.ASTTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordTransformer{logger: logger.With("component", "discord")}
}

// Transform implements parser.ASTTransformer.
func (t *DiscordTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	if node == nil {
		return
	}
	source := reader.Source()
	logger := t.logger.With(slog.String("path", DocumentPath(pc)))

	citations := CollectCitations(node, source, logger)
	stats := DiscordStats{
		Citations: len(citations),
		Markers:   SubstituteMarkers(node, source, citations),
		Embeds:    EmbedDiscordFences(node, source, logger),
	}
	if pc != nil {
		pc.Set(discordStatsKey, stats)
	}
	if !stats.IsZero() {
		logger.Debug("resolved discord content",
			slog.Int("citations", stats.Citations),
			slog.Int("markers", stats.Markers),
			slog.Int("embeds", stats.Embeds))
	}
}

// DiscordBlock is a rendered thread or HTML block placed directly in the AST.
type DiscordBlock struct {
	ast.BaseBlock
	HTML     string
	Messages int
}

// KindDiscordBlock is the node kind of rendered Discord blocks.
var KindDiscordBlock = ast.NewNodeKind("DiscordBlock")

// Kind implements ast.Node.
func (b *DiscordBlock) Kind() ast.NodeKind {
	return KindDiscordBlock
}

// IsRaw marks the node as raw HTML.
func (b *DiscordBlock) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (b *DiscordBlock) Dump(source []byte, level int) {
	ast.DumpHelper(b, source, level, map[string]string{
		"HTML":     fmt.Sprintf("%d bytes", len(b.HTML)),
		"Messages": fmt.Sprintf("%d", b.Messages),
	}, nil)
}

// DiscordInline is a rendered citation preview placed inside prose.
type DiscordInline struct {
	ast.BaseInline
	HTML          string
	SoftLineBreak bool
	HardLineBreak bool
}

// KindDiscordInline is the node kind of rendered citation previews.
var KindDiscordInline = ast.NewNodeKind("DiscordInline")

// Kind implements ast.Node.
func (n *DiscordInline) Kind() ast.NodeKind {
	return KindDiscordInline
}

// IsRaw marks the node as raw HTML.
func (n *DiscordInline) IsRaw() bool {
	return true
}

// Dump aids debugging.
func (n *DiscordInline) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"HTML": fmt.Sprintf("%d bytes", len(n.HTML)),
	}, nil)
}

// DiscordRenderer writes Discord nodes verbatim.
type DiscordRenderer struct{}

// NewDiscordRenderer returns a renderer for DiscordBlock and DiscordInline.
func NewDiscordRenderer() renderer.NodeRenderer {
	return &DiscordRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *DiscordRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDiscordBlock, r.renderBlock)
	reg.Register(KindDiscordInline, r.renderInline)
}

func (r *DiscordRenderer) renderBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	out := node.(*DiscordBlock).HTML
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	if _, err := w.WriteString(out); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

func (r *DiscordRenderer) renderInline(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*DiscordInline)
	if _, err := w.WriteString(n.HTML); err != nil {
		return ast.WalkStop, err
	}
	var err error
	switch {
	case n.HardLineBreak:
		_, err = w.WriteString("<br />\n")
	case n.SoftLineBreak:
		err = w.WriteByte('\n')
	}
	if err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
