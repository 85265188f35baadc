package tree_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/euforicio/wikicord/internal/renderer"
	"github.com/euforicio/wikicord/internal/renderer/transform"
	"github.com/euforicio/wikicord/internal/tree"
)

func fixtureRoot() string {
	return filepath.Join("..", "..", "testdata", "wiki")
}

func findChild(n *tree.Node, typ tree.NodeType, name string) *tree.Node {
	for _, child := range n.Children {
		if child.Type == typ && child.Name == name {
			return child
		}
	}
	return nil
}

func TestBuildGeneratesTree(t *testing.T) {
	t.Parallel()

	node, err := tree.Build(context.Background(), fixtureRoot(), tree.Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if node.Type != tree.NodeTypeDirectory {
		t.Fatalf("expected root to be directory, got %s", node.Type)
	}

	guides := findChild(node, tree.NodeTypeDirectory, "guides")
	threads := findChild(node, tree.NodeTypeDirectory, "threads")
	index := findChild(node, tree.NodeTypeFile, "index")
	if guides == nil || threads == nil || index == nil {
		t.Fatalf("expected guides, threads, and index at the root, got %+v", node.Children)
	}
	if findChild(node, tree.NodeTypeDirectory, "media") != nil {
		t.Fatalf("expected directory without notes to be dropped")
	}
	if node.Children[0].Type != tree.NodeTypeDirectory {
		t.Fatalf("expected directories before files")
	}

	if len(guides.Children) != 2 {
		t.Fatalf("expected guides to have 2 children, got %d", len(guides.Children))
	}
	advanced := findChild(guides, tree.NodeTypeFile, "advanced topics")
	if advanced == nil {
		t.Fatalf("expected underscores replaced in name, got %+v", guides.Children)
	}
	if advanced.Slug != "guides/advanced-topics" {
		t.Fatalf("unexpected slug: %s", advanced.Slug)
	}
	if advanced.RelativePath != "guides/advanced_topics.md" || advanced.RawName != "advanced_topics.md" {
		t.Fatalf("unexpected paths: %s %s", advanced.RelativePath, advanced.RawName)
	}
	if advanced.Metadata != nil {
		t.Fatalf("expected no metadata before annotation")
	}
	if advanced.Size == 0 {
		t.Fatalf("expected file size recorded")
	}
}

func TestHiddenFilesExcludedByDefault(t *testing.T) {
	t.Parallel()

	node, err := tree.Build(context.Background(), fixtureRoot(), tree.Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	var checkHidden func(*tree.Node)
	checkHidden = func(n *tree.Node) {
		if strings.HasPrefix(n.RawName, ".") {
			t.Fatalf("hidden entry should be excluded: %s", n.RelativePath)
		}
		for _, child := range n.Children {
			checkHidden(child)
		}
	}
	for _, child := range node.Children {
		checkHidden(child)
	}

	withHidden, err := tree.Build(context.Background(), fixtureRoot(), tree.Options{IncludeHidden: true})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if findChild(withHidden, tree.NodeTypeDirectory, ".hidden") == nil {
		t.Fatalf("expected hidden directory when IncludeHidden is set")
	}
	if findChild(withHidden, tree.NodeTypeDirectory, ".wikicord") != nil {
		t.Fatalf("expected the site config directory to stay excluded")
	}
}

func TestDottedDirectoryNamesKept(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "v1.2"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "v1.2", "release_notes.md"), []byte("# Notes"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	node, err := tree.Build(context.Background(), root, tree.Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	version := findChild(node, tree.NodeTypeDirectory, "v1.2")
	if version == nil {
		t.Fatalf("expected directory name kept whole, got %+v", node.Children)
	}
	if version.Slug != "v1.2" {
		t.Fatalf("unexpected directory slug: %s", version.Slug)
	}
	notes := findChild(version, tree.NodeTypeFile, "release notes")
	if notes == nil || notes.Slug != "v1.2/release-notes" {
		t.Fatalf("unexpected file under dotted directory: %+v", version.Children)
	}

	withHidden, err := tree.Build(context.Background(), fixtureRoot(), tree.Options{IncludeHidden: true})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	hidden := findChild(withHidden, tree.NodeTypeDirectory, ".hidden")
	if hidden == nil || hidden.Slug != ".hidden" || hidden.Title != ".hidden" {
		t.Fatalf("expected .hidden to keep its name, got %+v", hidden)
	}
	secret := findChild(hidden, tree.NodeTypeFile, "secret")
	if secret == nil || secret.Slug != ".hidden/secret" {
		t.Fatalf("unexpected hidden file: %+v", hidden.Children)
	}
}

func TestExcludedDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, dir := range []string{"docs", filepath.Join("node_modules", "lib"), "drafts"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		if err := os.WriteFile(filepath.Join(root, dir, "README.md"), []byte("# Readme"), 0o644); err != nil {
			t.Fatalf("write readme: %v", err)
		}
	}

	node, err := tree.Build(context.Background(), root, tree.Options{ExcludeDirs: []string{"Drafts"}})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(node.Children) != 1 || node.Children[0].RawName != "docs" {
		t.Fatalf("expected only docs to remain, got %+v", node.Children)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	if _, err := tree.Build(context.Background(), "", tree.Options{}); err == nil {
		t.Fatalf("expected error for empty root")
	}
	file := filepath.Join(t.TempDir(), "note.md")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tree.Build(context.Background(), file, tree.Options{}); err == nil {
		t.Fatalf("expected error for file root")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tree.Build(ctx, fixtureRoot(), tree.Options{}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestAnnotateAndSort(t *testing.T) {
	t.Parallel()

	node, err := tree.Build(context.Background(), fixtureRoot(), tree.Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	svc := renderer.NewService(nil)
	for _, file := range node.Files() {
		raw, err := os.ReadFile(filepath.Join(fixtureRoot(), filepath.FromSlash(file.RelativePath)))
		if err != nil {
			t.Fatalf("read %s: %v", file.RelativePath, err)
		}
		doc, err := svc.Render(context.Background(), file.RelativePath, time.Time{}, raw)
		if err != nil {
			t.Fatalf("render %s: %v", file.RelativePath, err)
		}
		file.Annotate(doc)
	}
	node.Sort()

	path := node.PathTo("threads/launch-discussion.md")
	if len(path) != 3 {
		t.Fatalf("expected root, threads, file path, got %d nodes", len(path))
	}
	launch := path[2]
	if launch.Title != "Launch Discussion" || launch.Metadata == nil {
		t.Fatalf("expected frontmatter title applied, got %+v", launch)
	}
	if launch.Citations != 1 || launch.Threads != 1 {
		t.Fatalf("expected one citation and one thread, got %d and %d", launch.Citations, launch.Threads)
	}

	guides := findChild(node, tree.NodeTypeDirectory, "guides")
	if guides.Children[0].Title != "advanced topics" || guides.Children[1].Title != "Getting Started" {
		t.Fatalf("expected case-insensitive title order, got %q then %q", guides.Children[0].Title, guides.Children[1].Title)
	}

	dir := &tree.Node{Type: tree.NodeTypeDirectory, Title: "dir"}
	dir.Annotate(renderer.Document{Discord: transform.DiscordStats{Markers: 3}})
	if dir.Citations != 0 {
		t.Fatalf("expected directories to ignore annotation")
	}
}
