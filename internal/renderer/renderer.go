// Package renderer converts wiki markdown to HTML with caching, syntax
// highlighting, and the Discord thread and citation extensions.
package renderer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/anchor"

	"github.com/euforicio/wikicord/internal/discord"
	"github.com/euforicio/wikicord/internal/renderer/transform"
)

// Metadata captures optional frontmatter data rendered alongside a document.
type Metadata struct {
	Raw         map[string]any
	Title       string
	Description string
	Tags        []string
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Description != "" || len(m.Tags) > 0 {
		return false
	}
	return len(m.Raw) == 0
}

// HighlightStyle is the chroma style used for fenced code.
const HighlightStyle = "github-dark"

// Document represents a rendered markdown file.
//
//nolint:govet // field order optimized for readability, not memory
type Document struct {
	HTML     string
	Metadata Metadata
	Modified time.Time
	Raw      string
	Discord  transform.DiscordStats
}

// Stylesheet is a named block of CSS a transform needs on every page that
// uses it.
type Stylesheet struct {
	Name string
	CSS  string
}

type cacheEntry struct {
	modTime time.Time
	sum     [sha256.Size]byte
	doc     Document
}

type cacheKey string

// Service renders markdown into HTML. Rendered documents are cached per path
// and reused while both the modification time and the content hash match.
type Service struct {
	md     goldmark.Markdown
	logger *slog.Logger
	cache  sync.Map // map[cacheKey]cacheEntry
}

// linkTransformer rewrites links between notes to the exported .html pages,
// keeping them relative so the site works from any base path.
type linkTransformer struct{}

func (t *linkTransformer) Transform(node *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			link.Destination = []byte(rewriteLink(string(link.Destination)))
		}
		return ast.WalkContinue, nil
	})
}

func rewriteLink(dest string) string {
	if dest == "" || isExternalLink(dest) || strings.HasPrefix(dest, "#") {
		return dest
	}
	target, fragment, _ := strings.Cut(dest, "#")
	if !strings.EqualFold(path.Ext(target), ".md") {
		return dest
	}
	target = strings.TrimSuffix(target, path.Ext(target)) + ".html"
	if fragment != "" {
		target += "#" + fragment
	}
	return target
}

func isExternalLink(dest string) bool {
	if strings.HasPrefix(dest, "//") {
		return true
	}
	scheme, _, ok := strings.Cut(dest, ":")
	if !ok || strings.ContainsAny(scheme, "/.?") {
		return false
	}
	return scheme != ""
}

// NewService constructs a markdown renderer with GitHub-flavored markdown support.
// The renderer includes:
//   - GitHub-flavored markdown extensions (tables, strikethrough, task lists, autolinks, etc.)
//   - Syntax highlighting with the github-dark theme and mermaid hydration divs
//   - YAML frontmatter parsing for document metadata
//   - Obsidian callouts and :::name container directives
//   - Discord threads from ```discord fences and citation callouts referenced by marker
//   - Links to .md notes rewritten to their .html pages
//   - Raw HTML rendering enabled (wiki content is trusted)
//
// If logger is nil, the default slog logger is used.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "renderer")

	highlight := highlighting.NewHighlighting(
		highlighting.WithStyle(HighlightStyle),
		highlighting.WithFormatOptions(
			html.WithLineNumbers(false),
			html.WithClasses(true),
		),
		highlighting.WithWrapperRenderer(transform.FenceWrapper(transform.DiagramClasses)),
	)

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			goldmarkmeta.Meta,
			highlight,
			&anchor.Extender{
				Position: anchor.After, // Place anchor link after heading text
			},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(), // Enable attribute syntax for blocks and inlines
			parser.WithBlockParsers(
				util.Prioritized(transform.NewDirectiveParser(), 650),
			),
			parser.WithASTTransformers(
				util.Prioritized(transform.NewCalloutTransformer(), 50),
				util.Prioritized(transform.NewDiscordTransformer(logger), 60),
				util.Prioritized(&linkTransformer{}, 100),
			),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
			gmrenderer.WithNodeRenderers(
				util.Prioritized(transform.NewDiscordRenderer(), 100),
				util.Prioritized(transform.NewDirectiveRenderer(), 100),
			),
		),
	)

	return &Service{
		md:     md,
		logger: logger,
	}
}

// Stylesheets lists the CSS the enabled transforms contribute. Each entry is
// meant to be emitted once per page, not once per occurrence.
func (s *Service) Stylesheets() []Stylesheet {
	return []Stylesheet{
		{Name: "discord", CSS: discord.CSS},
	}
}

// Render converts a note to HTML. path is the wiki-relative path of the note;
// it keys the cache and appears in transform logs.
func (s *Service) Render(_ context.Context, path string, modTime time.Time, content []byte) (Document, error) {
	key := cacheKey(path)
	sum := sha256.Sum256(content)

	if entry, ok := s.cache.Load(key); ok {
		cached := entry.(cacheEntry)
		if !cached.modTime.IsZero() && modTime.Equal(cached.modTime) && cached.sum == sum {
			return cached.doc, nil
		}
	}

	parserCtx := parser.NewContext()
	parserCtx.Set(transform.DocumentPathKey, path)
	buf := bytes.NewBuffer(nil)

	if err := s.md.Convert(content, buf, parser.WithContext(parserCtx)); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}

	metadata := extractMetadata(parserCtx)
	doc := Document{
		HTML:     buf.String(),
		Metadata: metadata,
		Modified: modTime,
		Raw:      string(content),
		Discord:  transform.DiscordStatsFromContext(parserCtx),
	}

	s.cache.Store(key, cacheEntry{modTime: modTime, sum: sum, doc: doc})
	return doc, nil
}

func extractMetadata(ctx parser.Context) Metadata {
	raw := goldmarkmeta.Get(ctx)
	var meta Metadata
	if raw == nil {
		return meta
	}

	meta.Raw = make(map[string]any)
	for k, v := range raw {
		meta.Raw[k] = v
		switch k {
		case "title":
			if str, ok := toString(v); ok {
				meta.Title = str
			}
		case "description", "summary":
			if str, ok := toString(v); ok {
				meta.Description = str
			}
		case "tags", "keywords":
			meta.Tags = toStringSlice(v)
		}
	}

	if len(meta.Raw) == 0 {
		meta.Raw = nil
	}

	return meta
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if str, ok := toString(item); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		if str, ok := toString(v); ok {
			return []string{str}
		}
		return nil
	}
}
