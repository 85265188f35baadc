package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/euforicio/wikicord/internal/renderer"
)

// Format represents a single page export format.
type Format string

const (
	// FormatHTML exports a standalone HTML document.
	FormatHTML Format = "html"
	// FormatMarkdown exports the note source unchanged.
	FormatMarkdown Format = "markdown"
	// FormatPlainText exports the rendered text without markup.
	FormatPlainText Format = "txt"
	// FormatPDF exports a PDF with Discord threads flattened into quotes.
	FormatPDF Format = "pdf"
)

// ValidFormats returns the list of supported export formats.
func ValidFormats() []Format {
	return []Format{FormatHTML, FormatMarkdown, FormatPlainText, FormatPDF}
}

// ParseFormat resolves a user supplied format name.
func ParseFormat(format string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	if f == "md" {
		f = FormatMarkdown
	}
	for _, valid := range ValidFormats() {
		if f == valid {
			return f, true
		}
	}
	return "", false
}

// PageOptions configures a single page export.
type PageOptions struct {
	Writer  io.Writer
	Format  Format
	RootDir string
	Path    string
}

// ExportPage renders one note in the requested format.
func (e *Exporter) ExportPage(ctx context.Context, opts PageOptions) error {
	if err := validatePageOptions(opts); err != nil {
		return err
	}
	format, _ := ParseFormat(string(opts.Format))

	rootDir, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	absPath, err := resolvePagePath(rootDir, opts.Path)
	if err != nil {
		return err
	}

	info, raw, err := readPageSource(absPath, opts.Path)
	if err != nil {
		return err
	}
	rel := filepath.ToSlash(opts.Path)

	switch format {
	case FormatHTML:
		return e.exportHTML(ctx, rel, info.ModTime(), raw, opts.Writer)
	case FormatMarkdown:
		_, err := opts.Writer.Write(raw)
		return err
	case FormatPlainText:
		return e.exportPlainText(ctx, rel, info.ModTime(), raw, opts.Writer)
	case FormatPDF:
		return exportPDF(raw, opts.Writer)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func validatePageOptions(opts PageOptions) error {
	if strings.TrimSpace(opts.RootDir) == "" {
		return errors.New("root directory is required")
	}
	if strings.TrimSpace(opts.Path) == "" {
		return errors.New("page path is required")
	}
	if opts.Writer == nil {
		return errors.New("writer is required")
	}
	if _, ok := ParseFormat(string(opts.Format)); !ok {
		return fmt.Errorf("unsupported format: %s (allowed: html, pdf, markdown, txt)", opts.Format)
	}
	return nil
}

func resolvePagePath(rootDir, pagePath string) (string, error) {
	cleanPath := filepath.Clean(filepath.FromSlash(pagePath))
	if filepath.IsAbs(cleanPath) || cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", errors.New("invalid path: directory traversal not allowed")
	}

	absPath, err := filepath.Abs(filepath.Join(rootDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !strings.HasPrefix(absPath, rootDir+string(filepath.Separator)) {
		return "", errors.New("invalid path: must be within root directory")
	}
	return absPath, nil
}

func readPageSource(absPath, originalPath string) (os.FileInfo, []byte, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("page not found: %s", originalPath)
		}
		return nil, nil, fmt.Errorf("stat page: %w", err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("page %s is a directory", originalPath)
	}

	raw, err := os.ReadFile(absPath) //nolint:gosec // absPath constructed from validated root
	if err != nil {
		return nil, nil, fmt.Errorf("read page: %w", err)
	}
	return info, raw, nil
}

var standaloneTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { font: 16px/1.6 system-ui, -apple-system, "Segoe UI", sans-serif; max-width: 800px; margin: 0 auto; padding: 2rem; color: #1f2937; }
    pre { padding: 1em; border-radius: 5px; overflow-x: auto; }
    blockquote { border-left: 4px solid #ddd; padding-left: 1em; margin-left: 0; color: #555; }
    table { border-collapse: collapse; }
    th, td { border: 1px solid #ddd; padding: 0.4em 0.6em; }
    img { max-width: 100%; height: auto; }
  </style>
  <style data-stylesheet="chroma">{{.Chroma}}</style>
  {{- range .Stylesheets}}
  <style data-stylesheet="{{.Name}}">{{.CSS}}</style>
  {{- end}}
</head>
<body>
{{.HTML}}
</body>
</html>
`))

func (e *Exporter) exportHTML(ctx context.Context, path string, modTime time.Time, raw []byte, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, path, modTime, raw)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	chroma, err := chromaCSS()
	if err != nil {
		return err
	}

	data := struct {
		Title       string
		Chroma      template.CSS
		Stylesheets []stylesheetView
		HTML        template.HTML
	}{
		Title:       firstNonEmpty(doc.Metadata.Title, titleFromPath(path)),
		Chroma:      template.CSS(chroma), //nolint:gosec // generated by chroma
		Stylesheets: stylesheetViews(e.renderer.Stylesheets()),
		HTML:        template.HTML(doc.HTML), //nolint:gosec // HTML from trusted renderer
	}
	return standaloneTemplate.Execute(w, data)
}

func (e *Exporter) exportPlainText(ctx context.Context, path string, modTime time.Time, raw []byte, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, path, modTime, raw)
	if err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	_, err = io.WriteString(w, stripHTML(doc.HTML))
	return err
}

func exportPDF(raw []byte, w io.Writer) error {
	flat, err := flattenDiscord(raw)
	if err != nil {
		return fmt.Errorf("flatten discord content: %w", err)
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRenderer(pdf.New()),
	)
	if err := md.Convert(flat, w); err != nil {
		return fmt.Errorf("convert markdown to PDF: %w", err)
	}
	return nil
}

func chromaCSS() (string, error) {
	style := styles.Get(renderer.HighlightStyle)
	if style == nil {
		style = styles.Fallback
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, style); err != nil {
		return "", fmt.Errorf("generate chroma css: %w", err)
	}
	return buf.String(), nil
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Article: true, atom.Header: true, atom.Aside: true,
}

// stripHTML returns the text content of fragment, one line per block
// element. Script, style, and button contents are dropped.
func stripHTML(fragment string) string {
	var (
		b    strings.Builder
		skip int
		z    = html.NewTokenizer(strings.NewReader(fragment))
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidyLines(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style || a == atom.Button {
				skip++
			}
			if blockElements[a] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style || a == atom.Button) && skip > 0 {
				skip--
			}
			if blockElements[a] {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[atom.Lookup(name)] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ContentType returns the MIME type for the given format.
func ContentType(format Format) string {
	switch format {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPlainText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for the given format.
func FileExtension(format Format) string {
	switch format {
	case FormatHTML:
		return ".html"
	case FormatMarkdown:
		return ".md"
	case FormatPlainText:
		return ".txt"
	case FormatPDF:
		return ".pdf"
	default:
		return ""
	}
}
