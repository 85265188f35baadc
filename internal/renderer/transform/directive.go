package transform

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Directive is a named container block:
//
//	:::name[label]
//	children
//	:::
//
// Outer directives wrapping inner ones use a longer colon fence.
type Directive struct {
	ast.BaseBlock
	Name  string
	Label string
	fence int
}

// KindDirective is the node kind of container directives.
var KindDirective = ast.NewNodeKind("Directive")

// Kind implements ast.Node.
func (d *Directive) Kind() ast.NodeKind {
	return KindDirective
}

// Dump implements ast.Node.
func (d *Directive) Dump(source []byte, level int) {
	ast.DumpHelper(d, source, level, map[string]string{
		"Name":  d.Name,
		"Label": d.Label,
	}, nil)
}

var directiveOpen = regexp.MustCompile(`^(:{3,})\s*([A-Za-z][A-Za-z0-9_-]*)(?:\[([^\]]*)\])?\s*(?:\{[^}]*\})?\s*$`)

type directiveParser struct{}

// NewDirectiveParser returns the block parser for container directives.
func NewDirectiveParser() parser.BlockParser {
	return &directiveParser{}
}

func (p *directiveParser) Trigger() []byte {
	return []byte{':'}
}

func (p *directiveParser) Open(_ ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, _ := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || pos >= len(line) {
		return nil, parser.NoChildren
	}
	m := directiveOpen.FindSubmatch(util.TrimRightSpace(line[pos:]))
	if m == nil {
		return nil, parser.NoChildren
	}
	node := &Directive{
		Name:  strings.ToLower(string(m[2])),
		Label: strings.TrimSpace(string(m[3])),
		fence: len(m[1]),
	}
	reader.Advance(lineLength(line))
	return node, parser.HasChildren
}

func (p *directiveParser) Continue(node ast.Node, reader text.Reader, _ parser.Context) parser.State {
	line, _ := reader.PeekLine()
	directive := node.(*Directive)
	trimmed := util.TrimRightSpace(util.TrimLeftSpace(line))
	if len(trimmed) >= directive.fence && strings.Trim(string(trimmed), ":") == "" {
		reader.Advance(lineLength(line))
		return parser.Close
	}
	return parser.Continue | parser.HasChildren
}

func (p *directiveParser) Close(ast.Node, text.Reader, parser.Context) {}

func (p *directiveParser) CanInterruptParagraph() bool {
	return true
}

func (p *directiveParser) CanAcceptIndentedLine() bool {
	return false
}

// lineLength is the length of line without its trailing newline.
func lineLength(line []byte) int {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	return n
}

// DirectiveRenderer writes directives as classed divs.
type DirectiveRenderer struct{}

// NewDirectiveRenderer returns a renderer for Directive nodes.
func NewDirectiveRenderer() renderer.NodeRenderer {
	return &DirectiveRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *DirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindDirective, r.renderDirective)
}

func (r *DirectiveRenderer) renderDirective(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	d := node.(*Directive)
	if !entering {
		_, err := w.WriteString("</div>\n")
		return ast.WalkContinue, err
	}
	name := html.EscapeString(d.Name)
	if _, err := fmt.Fprintf(w, `<div class="directive directive-%s" data-directive="%s"`, name, name); err != nil {
		return ast.WalkStop, err
	}
	if d.Label != "" {
		if _, err := fmt.Fprintf(w, ` aria-label="%s"`, html.EscapeString(d.Label)); err != nil {
			return ast.WalkStop, err
		}
	}
	_, err := w.WriteString(">\n")
	return ast.WalkContinue, err
}
