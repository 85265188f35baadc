// Package tree builds the navigation tree of a notes directory.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/euforicio/wikicord/internal/renderer"
)

// NodeType identifies what a tree node represents.
type NodeType string

// Node type constants for directory and file entries.
const (
	NodeTypeDirectory NodeType = "directory"
	NodeTypeFile      NodeType = "file"
)

// Node represents a navigation entry (directory or markdown file).
type Node struct {
	Modified     time.Time          `json:"modified"`
	Metadata     *renderer.Metadata `json:"metadata,omitempty"`
	Name         string             `json:"name"`
	RawName      string             `json:"rawName"`
	RelativePath string             `json:"relativePath"`
	Slug         string             `json:"slug"`
	Type         NodeType           `json:"type"`
	Title        string             `json:"title"`
	Children     []*Node            `json:"children,omitempty"`
	Size         int64              `json:"size"`
	Citations    int                `json:"citations,omitempty"`
	Threads      int                `json:"threads,omitempty"`
}

// Options control how the tree is constructed.
type Options struct {
	ExcludeDirs   []string
	IncludeHidden bool
}

// Build walks root and returns the tree of markdown notes below it. File
// nodes are titled from their names until Annotate supplies rendered
// metadata. Directories without notes are dropped.
func Build(ctx context.Context, root string, opts Options) (*Node, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	w := newWalker(absRoot, opts)
	top := w.directory(".", info)
	if err := fs.WalkDir(os.DirFS(absRoot), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", rel, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return w.visit(rel, d)
	}); err != nil {
		return nil, err
	}

	prune(top)
	top.Sort()
	return top, nil
}

var defaultExcludedDirs = []string{
	"node_modules",
	"vendor",
	".git",
	".obsidian",
	".trash",
	".wikicord",
}

// walker accumulates nodes keyed by their slash-separated relative path.
type walker struct {
	exclude map[string]struct{}
	dirs    map[string]*Node
	root    string
	hidden  bool
}

func newWalker(absRoot string, opts Options) *walker {
	w := &walker{
		exclude: make(map[string]struct{}),
		dirs:    make(map[string]*Node),
		root:    absRoot,
		hidden:  opts.IncludeHidden,
	}
	for _, name := range slices.Concat(defaultExcludedDirs, opts.ExcludeDirs) {
		if name = strings.TrimSpace(name); name != "" {
			w.exclude[strings.ToLower(name)] = struct{}{}
		}
	}
	return w
}

func (w *walker) visit(rel string, d fs.DirEntry) error {
	if rel == "." {
		return nil
	}
	name := d.Name()
	if !w.hidden && strings.HasPrefix(name, ".") {
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		if _, skip := w.exclude[strings.ToLower(name)]; skip {
			return fs.SkipDir
		}
	} else if !d.Type().IsRegular() || !IsMarkdown(name) {
		return nil
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	parent := w.dirs[path.Dir(rel)]
	var node *Node
	if d.IsDir() {
		node = w.directory(rel, info)
	} else {
		node = fileNode(rel, info)
	}
	parent.Children = append(parent.Children, node)
	return nil
}

func (w *walker) directory(rel string, info fs.FileInfo) *Node {
	display := filepath.Base(w.root)
	if rel != "." {
		display = displayName(path.Base(rel))
	} else {
		rel = ""
	}
	node := &Node{
		Name:         display,
		RawName:      info.Name(),
		RelativePath: rel,
		Slug:         slugify(rel),
		Type:         NodeTypeDirectory,
		Title:        display,
		Modified:     info.ModTime(),
	}
	if rel == "" {
		node.RawName = filepath.Base(w.root)
		w.dirs["."] = node
	} else {
		w.dirs[rel] = node
	}
	return node
}

// prune drops directories that ended up without any notes and reports
// whether n itself still has content.
func prune(n *Node) bool {
	n.Children = slices.DeleteFunc(n.Children, func(child *Node) bool {
		return child.Type == NodeTypeDirectory && !prune(child)
	})
	return len(n.Children) > 0
}

func fileNode(rel string, info fs.FileInfo) *Node {
	display := fileDisplayName(path.Base(rel))
	return &Node{
		Name:         display,
		RawName:      path.Base(rel),
		RelativePath: rel,
		Slug:         slugify(strings.TrimSuffix(rel, path.Ext(rel))),
		Type:         NodeTypeFile,
		Title:        display,
		Modified:     info.ModTime(),
		Size:         info.Size(),
	}
}

// Annotate copies the rendered document's metadata and Discord counts onto
// the file node.
func (n *Node) Annotate(doc renderer.Document) {
	if n == nil || n.Type != NodeTypeFile {
		return
	}
	if !doc.Metadata.IsZero() {
		meta := doc.Metadata
		n.Metadata = &meta
		if meta.Title != "" {
			n.Title = meta.Title
		}
	}
	n.Citations = doc.Discord.Markers
	n.Threads = doc.Discord.Embeds
}

// Files returns the file nodes below n in depth-first order.
func (n *Node) Files() []*Node {
	var files []*Node
	var walk func(*Node)
	walk = func(node *Node) {
		if node == nil {
			return
		}
		if node.Type == NodeTypeFile {
			files = append(files, node)
			return
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)
	return files
}

// PathTo returns the nodes from n down to the node at rel, or nil.
func (n *Node) PathTo(rel string) []*Node {
	if n == nil {
		return nil
	}
	if n.RelativePath == rel {
		return []*Node{n}
	}
	for _, child := range n.Children {
		if trail := child.PathTo(rel); len(trail) > 0 {
			return append([]*Node{n}, trail...)
		}
	}
	return nil
}

// Sort orders every level of the tree: directories first, then by title.
func (n *Node) Sort() {
	if n == nil {
		return
	}
	for _, child := range n.Children {
		child.Sort()
	}
	slices.SortStableFunc(n.Children, func(a, b *Node) int {
		if a.Type != b.Type {
			if a.Type == NodeTypeDirectory {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
}

// IsMarkdown reports whether name has a markdown extension.
func IsMarkdown(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}

func fileDisplayName(name string) string {
	return displayName(strings.TrimSuffix(name, path.Ext(name)))
}

// displayName keeps dots intact so ".hidden" and "v1.2" survive as written.
func displayName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
}

// slugify expects file extensions already trimmed by the caller.
func slugify(rel string) string {
	if rel == "" {
		return ""
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		part = strings.ToLower(displayName(part))
		part = strings.ReplaceAll(part, " ", "-")
		parts[i] = part
	}
	return strings.Join(parts, "/")
}
