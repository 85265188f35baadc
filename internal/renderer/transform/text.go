package transform

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
)

// DocumentPathKey holds the wiki-relative path of the document being parsed.
var DocumentPathKey = parser.NewContextKey()

// DocumentPath returns the path stored under DocumentPathKey, or "".
func DocumentPath(pc parser.Context) string {
	if pc == nil {
		return ""
	}
	if v, ok := pc.Get(DocumentPathKey).(string); ok {
		return v
	}
	return ""
}

// inlineText concatenates the literal text below n.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := child.(type) {
		case *ast.Text:
			buf.Write(typed.Segment.Value(source))
			if typed.SoftLineBreak() || typed.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(typed.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// firstLine returns the text of n up to its first line break.
func firstLine(n ast.Node, source []byte) string {
	text := inlineText(n, source)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

// linesSource joins the raw lines of a block node.
func linesSource(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return buf.Bytes()
}

func copyAttributes(src ast.Node, dst ast.Node) {
	if src == nil || dst == nil {
		return
	}
	for _, attr := range src.Attributes() {
		dst.SetAttribute(attr.Name, attr.Value)
	}
}

func attributeString(n ast.Node, name string) string {
	v, ok := n.AttributeString(name)
	if !ok {
		return ""
	}
	switch typed := v.(type) {
	case []byte:
		return string(typed)
	case string:
		return typed
	default:
		return ""
	}
}
