package transform

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// CalloutAttribute carries the callout type on tagged blockquotes.
const CalloutAttribute = "data-callout"

var calloutHeader = regexp.MustCompile(`^\s*\[!([A-Za-z0-9_-]+)\]([+-]?)\s*(.*)$`)

// CalloutTransformer tags Obsidian-style callouts ("> [!note] Title") so
// later transformers and stylesheets can recognise them by attribute.
type CalloutTransformer struct{}

// NewCalloutTransformer returns the callout tagging transformer.
func NewCalloutTransformer() parser.ASTTransformer {
	return &CalloutTransformer{}
}

// Transform implements parser.ASTTransformer.
func (t *CalloutTransformer) Transform(node *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		quote, ok := n.(*ast.Blockquote)
		if !ok {
			return ast.WalkContinue, nil
		}
		para, ok := quote.FirstChild().(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		m := calloutHeader.FindStringSubmatch(firstLine(para, source))
		if m == nil {
			return ast.WalkContinue, nil
		}
		kind := strings.ToLower(m[1])
		quote.SetAttributeString("class", []byte("callout callout-"+kind))
		quote.SetAttributeString(CalloutAttribute, []byte(kind))
		switch m[2] {
		case "-":
			quote.SetAttributeString("data-callout-fold", []byte("closed"))
		case "+":
			quote.SetAttributeString("data-callout-fold", []byte("open"))
		}
		if title := strings.TrimSpace(m[3]); title != "" {
			quote.SetAttributeString("data-callout-title", []byte(title))
		}
		return ast.WalkContinue, nil
	})
}
