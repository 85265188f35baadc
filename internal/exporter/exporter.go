// Package exporter generates static HTML sites from markdown notes.
package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/euforicio/wikicord/internal/renderer"
	"github.com/euforicio/wikicord/internal/tree"
	wikistatic "github.com/euforicio/wikicord/static"
)

const (
	indexHTML = "index.html"

	// CustomCSSPath is the theme override looked up below the notes root.
	CustomCSSPath = ".wikicord/custom.css"
)

// Options configure the static export behavior.
type Options struct {
	Root                string
	OutputDir           string
	AssetsDir           string
	SiteTitle           string
	AssetPrefix         string
	BaseURL             string
	Workers             int
	IncludeHidden       bool
	DarkModeFirst       bool
	GenerateSearchIndex bool
	CleanOutput         bool
}

// Summary reports what an export produced.
type Summary struct {
	Documents int
	Citations int
	Threads   int
	Media     int
	Bytes     int64
	Duration  time.Duration
}

// Exporter renders markdown notes into a static HTML bundle.
type Exporter struct {
	renderer  *renderer.Service
	templates *templateRenderer
	logger    *slog.Logger
}

// New constructs an exporter instance ready for use.
func New(logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return &Exporter{
		renderer:  renderer.NewService(logger),
		templates: tmpl,
		logger:    logger.With("component", "exporter"),
	}, nil
}

type renderedNote struct {
	node *tree.Node
	doc  renderer.Document
	raw  []byte
}

// Export walks the notes below opts.Root and writes a static site to opts.OutputDir.
//
//nolint:gocognit,gocyclo // export orchestration requires sequential steps and validation
func (e *Exporter) Export(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary
	if strings.TrimSpace(opts.Root) == "" {
		return summary, errors.New("root directory is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return summary, errors.New("output directory is required")
	}
	if strings.TrimSpace(opts.AssetPrefix) == "" {
		opts.AssetPrefix = "assets"
	}
	if strings.TrimSpace(opts.SiteTitle) == "" {
		opts.SiteTitle = "wikicord"
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}

	rootDir, err := filepath.Abs(opts.Root)
	if err != nil {
		return summary, fmt.Errorf("resolve root: %w", err)
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return summary, fmt.Errorf("resolve output: %w", err)
	}
	if outputDir == rootDir {
		return summary, errors.New("output directory must differ from the root directory")
	}
	assetsDir := opts.AssetsDir
	if assetsDir != "" {
		if assetsDir, err = filepath.Abs(assetsDir); err != nil {
			return summary, fmt.Errorf("resolve assets: %w", err)
		}
	}

	if err := e.prepareOutputDir(outputDir, opts.CleanOutput); err != nil {
		return summary, err
	}

	generatedAt := time.Now().UTC()

	treeRoot, err := tree.Build(ctx, rootDir, tree.Options{
		IncludeHidden: opts.IncludeHidden,
		ExcludeDirs:   excludeOutput(rootDir, outputDir),
	})
	if err != nil {
		return summary, fmt.Errorf("build content tree: %w", err)
	}

	files := treeRoot.Files()
	notes, err := e.renderAll(ctx, rootDir, files, opts.Workers)
	if err != nil {
		return summary, err
	}
	for _, note := range notes {
		note.node.Annotate(note.doc)
		summary.Citations += note.doc.Discord.Markers
		summary.Threads += note.doc.Discord.Embeds
	}
	treeRoot.Sort()

	assets := buildAssetRefs(opts.AssetPrefix)
	assetDest := filepath.Join(outputDir, filepath.FromSlash(opts.AssetPrefix))
	if err := e.copyAssetBundle(assetDest, assetsDir); err != nil {
		return summary, err
	}
	if err := writeChromaCSS(filepath.Join(outputDir, filepath.FromSlash(assets.CSSChroma))); err != nil {
		return summary, err
	}

	site := siteViewData{
		Title:         opts.SiteTitle,
		GeneratedAt:   generatedAt,
		Tree:          treeRoot,
		DarkModeFirst: opts.DarkModeFirst,
		BaseURL:       strings.TrimRight(opts.BaseURL, "/"),
		Stylesheets:   stylesheetViews(e.renderer.Stylesheets()),
	}
	if css, ok := e.customCSS(rootDir); ok {
		site.CustomCSS = template.CSS(css) //nolint:gosec // operator supplied theme
	}

	treePayload := struct {
		GeneratedAt time.Time  `json:"generatedAt"`
		Root        *tree.Node `json:"root"`
	}{
		GeneratedAt: generatedAt,
		Root:        treeRoot,
	}
	if rawTree, err := json.Marshal(treePayload); err == nil {
		site.TreeJSON = template.JS(rawTree) //nolint:gosec // JSON from trusted source
	} else {
		e.logger.Warn("encode tree json failed", slog.Any("err", err))
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, note := range notes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			layout := e.layoutFor(site, assets, treeRoot, note)
			n, err := e.writeCustomPage(outputDir, layout.Page.Output, layout)
			if err != nil {
				return fmt.Errorf("write page %s: %w", note.node.RelativePath, err)
			}
			written.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	if len(notes) == 0 {
		welcome := layoutViewData{
			Site:   site,
			Assets: assets,
		}
		welcome.Page.Title = site.Title
		welcome.Page.URL = indexHTML
		welcome.Page.HTML = template.HTML(`<div class="empty">No markdown notes were found in the export root. Add <code>.md</code> files under the root directory and rerun <code>wikicord-export</code>.</div>`)
		n, err := e.writeCustomPage(outputDir, indexHTML, welcome)
		if err != nil {
			return summary, fmt.Errorf("write welcome page: %w", err)
		}
		written.Add(n)
	} else if landing := landingNote(notes); toHTMLRel(landing.node.RelativePath) != indexHTML {
		layout := e.layoutFor(site, assets, treeRoot, landing)
		layout.Base = ""
		n, err := e.writeCustomPage(outputDir, indexHTML, layout)
		if err != nil {
			return summary, fmt.Errorf("write landing page: %w", err)
		}
		written.Add(n)
	}

	media, mediaBytes, err := copyMedia(ctx, rootDir, outputDir, opts.IncludeHidden)
	if err != nil {
		return summary, err
	}

	if err := writeTreeJSON(outputDir, treePayload); err != nil {
		return summary, err
	}

	if opts.GenerateSearchIndex {
		if err := writeSearchIndex(outputDir, generatedAt, searchEntries(notes)); err != nil {
			return summary, err
		}
	}

	summary.Documents = len(notes)
	summary.Media = media
	summary.Bytes = written.Load() + mediaBytes
	summary.Duration = time.Since(generatedAt)

	e.logger.Info("export complete",
		slog.Int("documents", summary.Documents),
		slog.Int("citations", summary.Citations),
		slog.Int("threads", summary.Threads),
		slog.Int("media", summary.Media),
		slog.String("written", humanize.Bytes(uint64(summary.Bytes))), //nolint:gosec // byte counts are non-negative
		slog.String("output", outputDir),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// renderAll renders every note in parallel. Results keep the order of files.
func (e *Exporter) renderAll(ctx context.Context, rootDir string, files []*tree.Node, workers int) ([]renderedNote, error) {
	notes := make([]renderedNote, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, node := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			absPath := filepath.Join(rootDir, filepath.FromSlash(node.RelativePath))
			raw, err := os.ReadFile(absPath) //nolint:gosec // absPath constructed from validated root
			if err != nil {
				return fmt.Errorf("read %s: %w", node.RelativePath, err)
			}
			doc, err := e.renderer.Render(gctx, node.RelativePath, node.Modified, raw)
			if err != nil {
				return fmt.Errorf("render %s: %w", node.RelativePath, err)
			}
			notes[i] = renderedNote{node: node, doc: doc, raw: raw}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return notes, nil
}

func (e *Exporter) layoutFor(site siteViewData, assets assetRefs, root *tree.Node, note renderedNote) layoutViewData {
	page := pageViewData{
		Path:        note.node.RelativePath,
		Output:      toHTMLRel(note.node.RelativePath),
		URL:         toHTMLRel(note.node.RelativePath),
		Title:       firstNonEmpty(note.doc.Metadata.Title, note.node.Title, titleFromPath(note.node.RelativePath)),
		HTML:        template.HTML(note.doc.HTML), //nolint:gosec // HTML from trusted renderer
		Metadata:    note.doc.Metadata,
		Modified:    note.doc.Modified,
		Breadcrumbs: breadcrumbsFor(root, note.node.RelativePath),
		Citations:   note.doc.Discord.Markers,
		Threads:     note.doc.Discord.Embeds,
	}
	if site.BaseURL != "" {
		if page.URL == indexHTML {
			page.Canonical = site.BaseURL
		} else {
			page.Canonical = fmt.Sprintf("%s/%s", site.BaseURL, page.URL)
		}
	}
	return layoutViewData{
		Site:        site,
		Page:        page,
		Active:      note.node.RelativePath,
		HasDocument: true,
		Assets:      assets,
		Base:        relativeBase(page.Output),
	}
}

// landingNote prefers a root-level index or readme, falling back to the first note.
func landingNote(notes []renderedNote) renderedNote {
	for _, candidate := range []string{"index", "readme"} {
		for _, note := range notes {
			rel := note.node.RelativePath
			if strings.Contains(rel, "/") {
				continue
			}
			if strings.EqualFold(strings.TrimSuffix(rel, filepath.Ext(rel)), candidate) {
				return note
			}
		}
	}
	return notes[0]
}

func (e *Exporter) prepareOutputDir(output string, clean bool) error {
	if clean {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("clean output: %w", err)
		}
	}
	return os.MkdirAll(output, 0o755) //nolint:gosec // standard directory permissions
}

func (e *Exporter) writeCustomPage(root, rel string, data layoutViewData) (int64, error) {
	if data.Base == "" {
		data.Base = relativeBase(rel)
	}
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return 0, err
	}
	buf := bytes.Buffer{}
	if err := e.templates.render(&buf, "layout", data); err != nil {
		return 0, err
	}
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil { //nolint:gosec // standard file permissions
		return 0, err
	}
	return int64(buf.Len()), nil
}

func (e *Exporter) copyAssetBundle(dest, override string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("reset assets dir: %w", err)
	}
	override = strings.TrimSpace(override)
	if override != "" {
		if info, err := os.Stat(override); err == nil && info.IsDir() {
			if _, err := copyTree(override, dest, nil); err != nil {
				return fmt.Errorf("copy override assets: %w", err)
			}
			e.logger.Debug("exporter using override assets", slog.String("source", override))
			return nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat assets override: %w", err)
		}
	}

	if err := wikistatic.CopyAll(dest); err != nil {
		return fmt.Errorf("copy embedded assets: %w", err)
	}
	return nil
}

// customCSS returns the theme override below root. Files that resolve
// outside root through symlinks are ignored.
func (e *Exporter) customCSS(root string) (string, bool) {
	candidate := filepath.Join(root, filepath.FromSlash(CustomCSSPath))
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("resolve custom css failed", slog.String("path", candidate), slog.Any("err", err))
		}
		return "", false
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", false
	}
	if rel, err := filepath.Rel(realRoot, resolved); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		e.logger.Warn("custom css escapes the notes root", slog.String("path", candidate), slog.String("target", resolved))
		return "", false
	}
	raw, err := os.ReadFile(resolved) //nolint:gosec // confined to root above
	if err != nil {
		e.logger.Warn("read custom css failed", slog.String("path", resolved), slog.Any("err", err))
		return "", false
	}
	e.logger.Debug("using custom css", slog.String("path", resolved), slog.String("size", humanize.Bytes(uint64(len(raw)))))
	return string(raw), true
}

func writeChromaCSS(dest string) error {
	css, err := chromaCSS()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return err
	}
	if err := os.WriteFile(dest, []byte(css), 0o644); err != nil { //nolint:gosec // standard file permissions
		return fmt.Errorf("write chroma css: %w", err)
	}
	return nil
}

func excludeOutput(root, output string) []string {
	rel, err := filepath.Rel(root, output)
	if err != nil || strings.HasPrefix(rel, "..") || strings.Contains(filepath.ToSlash(rel), "/") {
		return nil
	}
	return []string{rel}
}

func toHTMLRel(rel string) string {
	clean := strings.TrimSpace(rel)
	if clean == "" {
		return indexHTML
	}
	ext := filepath.Ext(clean)
	if ext != "" {
		clean = strings.TrimSuffix(clean, ext)
	}
	clean = strings.TrimSuffix(clean, "/")
	if clean == "" {
		return indexHTML
	}
	return clean + ".html"
}

// relativeBase returns the prefix leading from the page at rel back to the site root.
func relativeBase(rel string) string {
	depth := strings.Count(path.Clean(strings.TrimPrefix(rel, "/")), "/")
	return strings.Repeat("../", depth)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	parts := strings.Split(base, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, " ")
}

type breadcrumb struct {
	Title string
	URL   string
}

func breadcrumbsFor(root *tree.Node, target string) []breadcrumb {
	nodes := root.PathTo(target)
	if len(nodes) <= 1 {
		return nil
	}
	nodes = nodes[1:]
	out := make([]breadcrumb, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, breadcrumb{Title: firstNonEmpty(node.Title, titleFromPath(node.RelativePath))})
	}
	return out
}

func buildAssetRefs(prefix string) assetRefs {
	clean := strings.Trim(prefix, "/")
	if clean == "" {
		clean = "assets"
	}
	join := func(parts ...string) string {
		return path.Join(append([]string{clean}, parts...)...)
	}
	return assetRefs{
		CSSApp:    join("css", "app.css"),
		CSSChroma: join("css", "chroma-"+renderer.HighlightStyle+".css"),
		JSApp:     join("js", "site.js"),
	}
}

// copyTree copies regular files below src into dst. keep, when set, filters
// entries by their slash-separated relative path. It returns the bytes copied.
func copyTree(src, dst string, keep func(rel string, d fs.DirEntry) bool) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("directory %s does not exist", src)
		}
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("path %s is not a directory", src)
	}

	var copied int64
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if keep != nil && !keep(filepath.ToSlash(rel), d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil { //nolint:gosec // standard directory permissions
			return err
		}
		data, err := os.ReadFile(p) //nolint:gosec // path from validated source directory
		if err != nil {
			return err
		}
		copied += int64(len(data))
		return os.WriteFile(target, data, 0o644) //nolint:gosec // standard file permissions
	})
	return copied, err
}

// mediaExtensions lists the non-markdown files referenced from notes that are
// copied into the site.
var mediaExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".avif": {}, ".pdf": {}, ".mp4": {}, ".webm": {}, ".mp3": {}, ".canvas": {},
}

func copyMedia(ctx context.Context, root, output string, includeHidden bool) (int, int64, error) {
	var count int
	outRel, _ := filepath.Rel(root, output)
	outRel = filepath.ToSlash(outRel)
	n, err := copyTree(root, output, func(rel string, d fs.DirEntry) bool {
		if ctx.Err() != nil {
			return false
		}
		if rel == outRel {
			return false
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && (!includeHidden || name == ".git" || name == ".wikicord") {
			return false
		}
		if d.IsDir() {
			return name != "node_modules"
		}
		if _, ok := mediaExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return false
		}
		count++
		return true
	})
	if err != nil {
		return 0, 0, fmt.Errorf("copy media: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return count, n, nil
}

func writeTreeJSON(output string, payload any) error {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tree json: %w", err)
	}
	dest := filepath.Join(output, "tree.json")
	if err := os.WriteFile(dest, raw, 0o644); err != nil { //nolint:gosec // standard file permissions
		return fmt.Errorf("write tree.json: %w", err)
	}
	return nil
}

type searchEntry struct {
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Modified  time.Time `json:"modified"`
	Citations int       `json:"citations,omitempty"`
	Raw       string    `json:"raw"`
}

func searchEntries(notes []renderedNote) []searchEntry {
	entries := make([]searchEntry, 0, len(notes))
	for _, note := range notes {
		entries = append(entries, searchEntry{
			Path:      toHTMLRel(note.node.RelativePath),
			Source:    note.node.RelativePath,
			Title:     firstNonEmpty(note.doc.Metadata.Title, note.node.Title),
			Summary:   note.doc.Metadata.Description,
			Tags:      note.doc.Metadata.Tags,
			Modified:  note.doc.Modified,
			Citations: note.doc.Discord.Markers,
			Raw:       string(note.raw),
		})
	}
	return entries
}

func writeSearchIndex(output string, generatedAt time.Time, entries []searchEntry) error {
	payload := struct {
		GeneratedAt time.Time     `json:"generatedAt"`
		Entries     []searchEntry `json:"entries"`
	}{
		GeneratedAt: generatedAt,
		Entries:     entries,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode search index: %w", err)
	}
	dest := filepath.Join(output, "search.json")
	if err := os.WriteFile(dest, raw, 0o644); err != nil { //nolint:gosec // standard file permissions
		return fmt.Errorf("write search.json: %w", err)
	}
	return nil
}

//nolint:govet // field order optimized for readability, not memory
type layoutViewData struct {
	Page        pageViewData
	Site        siteViewData
	Assets      assetRefs
	Active      string
	Base        string
	HasDocument bool
}

type stylesheetView struct {
	Name string
	CSS  template.CSS
}

func stylesheetViews(sheets []renderer.Stylesheet) []stylesheetView {
	out := make([]stylesheetView, 0, len(sheets))
	for _, sheet := range sheets {
		out = append(out, stylesheetView{Name: sheet.Name, CSS: template.CSS(sheet.CSS)}) //nolint:gosec // bundled stylesheet
	}
	return out
}

type siteViewData struct {
	GeneratedAt   time.Time
	Tree          *tree.Node
	Title         string
	TreeJSON      template.JS
	BaseURL       string
	CustomCSS     template.CSS
	Stylesheets   []stylesheetView
	DarkModeFirst bool
}

type pageViewData struct {
	Metadata    renderer.Metadata
	Modified    time.Time
	Path        string
	Output      string
	URL         string
	Title       string
	HTML        template.HTML
	Canonical   string
	Breadcrumbs []breadcrumb
	Citations   int
	Threads     int
}

type assetRefs struct {
	CSSApp    string
	CSSChroma string
	JSApp     string
}
