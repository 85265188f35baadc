package exporter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportPage(t *testing.T) {
	t.Parallel()

	exp, err := New(quietLogger())
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}
	ctx := context.Background()
	root := fixtureRoot()
	const note = "threads/launch-discussion.md"

	t.Run("HTML export", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := exp.ExportPage(ctx, PageOptions{RootDir: root, Path: note, Format: FormatHTML, Writer: &buf}); err != nil {
			t.Fatalf("HTML export failed: %v", err)
		}
		html := buf.String()
		if !strings.HasPrefix(html, "<!DOCTYPE html>") {
			t.Error("HTML export missing DOCTYPE")
		}
		if !strings.Contains(html, "<title>Launch Discussion</title>") {
			t.Error("HTML export missing frontmatter title")
		}
		if strings.Count(html, `data-stylesheet="discord"`) != 1 || !strings.Contains(html, `data-stylesheet="chroma"`) {
			t.Error("HTML export missing inlined stylesheets")
		}
		if !strings.Contains(html, "discord-thread") {
			t.Error("HTML export missing rendered thread")
		}
	})

	t.Run("Markdown export", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := exp.ExportPage(ctx, PageOptions{RootDir: root, Path: note, Format: "md", Writer: &buf}); err != nil {
			t.Fatalf("Markdown export failed: %v", err)
		}
		want, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(note)))
		if err != nil {
			t.Fatalf("read note: %v", err)
		}
		if buf.String() != string(want) {
			t.Errorf("Markdown export mismatch")
		}
	})

	t.Run("Plain text export", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := exp.ExportPage(ctx, PageOptions{RootDir: root, Path: note, Format: FormatPlainText, Writer: &buf}); err != nil {
			t.Fatalf("Plain text export failed: %v", err)
		}
		text := buf.String()
		if !strings.Contains(text, "Launch Discussion") || !strings.Contains(text, "Friday works for me") {
			t.Errorf("Plain text export missing content: %q", text)
		}
		if strings.Contains(text, "<") || strings.Contains(text, "View Discord citation") {
			t.Errorf("Plain text export contains markup: %q", text)
		}
	})

	t.Run("PDF export", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := exp.ExportPage(ctx, PageOptions{RootDir: root, Path: note, Format: FormatPDF, Writer: &buf}); err != nil {
			t.Fatalf("PDF export failed: %v", err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
			t.Errorf("PDF export did not return valid PDF header")
		}
	})

	rejected := []struct {
		name string
		path string
		want string
	}{
		{name: "Path traversal", path: "../etc/passwd", want: "directory traversal"},
		{name: "Nested traversal", path: "guides/../../../etc/passwd", want: "directory traversal"},
		{name: "Absolute path", path: "/etc/passwd", want: ""},
		{name: "Missing file", path: "missing.md", want: "page not found"},
		{name: "Directory", path: "guides", want: "is a directory"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			err := exp.ExportPage(ctx, PageOptions{RootDir: root, Path: tt.path, Format: FormatHTML, Writer: &buf})
			if err == nil {
				t.Fatalf("expected error for %s", tt.path)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q error, got: %v", tt.want, err)
			}
		})
	}

	t.Run("Invalid format", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := exp.ExportPage(ctx, PageOptions{RootDir: root, Path: note, Format: "docx", Writer: &buf}); err == nil {
			t.Error("Expected error for invalid format")
		}
	})
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	f := func(input string, expected Format, ok bool) {
		t.Helper()
		got, gotOK := ParseFormat(input)
		if got != expected || gotOK != ok {
			t.Errorf("ParseFormat(%q) = %q, %v, want %q, %v", input, got, gotOK, expected, ok)
		}
	}

	f("html", FormatHTML, true)
	f(" PDF ", FormatPDF, true)
	f("md", FormatMarkdown, true)
	f("markdown", FormatMarkdown, true)
	f("txt", FormatPlainText, true)
	f("json", "", false)
	f("", "", false)
}

func TestContentTypeAndExtension(t *testing.T) {
	t.Parallel()
	f := func(format Format, contentType, ext string) {
		t.Helper()
		if got := ContentType(format); got != contentType {
			t.Errorf("ContentType(%q) = %q, want %q", format, got, contentType)
		}
		if got := FileExtension(format); got != ext {
			t.Errorf("FileExtension(%q) = %q, want %q", format, got, ext)
		}
	}

	f(FormatHTML, "text/html; charset=utf-8", ".html")
	f(FormatMarkdown, "text/markdown; charset=utf-8", ".md")
	f(FormatPlainText, "text/plain; charset=utf-8", ".txt")
	f(FormatPDF, "application/pdf", ".pdf")
	f("invalid", "application/octet-stream", "")
}

func TestStripHTML(t *testing.T) {
	t.Parallel()
	f := func(html, expected string) {
		t.Helper()
		if got := stripHTML(html); got != expected {
			t.Errorf("stripHTML(%q) =\n%q\nwant:\n%q", html, got, expected)
		}
	}

	f("<p>Hello world</p>", "Hello world")
	f("<h1>Title</h1><p>Content</p>", "Title\n\nContent")
	f("<script>alert('test')</script><p>Text</p>", "Text")
	f("<style>.class{color:red}</style><p>Text</p>", "Text")
	f(`<p>See <button aria-label="x"><span>2</span></button>here</p>`, "See here")
	f("Plain &amp; simple", "Plain & simple")
}
