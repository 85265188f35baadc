package canvas_test

import (
	"strings"
	"testing"

	"github.com/euforicio/wikicord/internal/canvas"
)

const validCanvas = `{
  "nodes": [
    {"id": "a", "type": "text", "x": 0, "y": 0, "width": 250, "height": 60, "text": "Launch plan"},
    {"id": "b", "type": "file", "x": 300, "y": 0, "width": 400, "height": 400, "file": "threads/launch-discussion.md"},
    {"id": "c", "type": "link", "x": 0, "y": 100, "width": 250, "height": 60, "url": "https://discord.com/channels/1/2/3"},
    {"id": "g", "type": "group", "x": -20, "y": -20, "width": 800, "height": 500, "label": "Launch"}
  ],
  "edges": [
    {"id": "e1", "fromNode": "a", "fromSide": "right", "toNode": "b", "toSide": "left"}
  ]
}`

func TestValidCanvas(t *testing.T) {
	t.Parallel()

	c, err := canvas.Parse([]byte(validCanvas))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Nodes) != 4 || len(c.Edges) != 1 {
		t.Fatalf("unexpected canvas: %+v", c)
	}
	if problems := c.Validate(); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	empty, err := canvas.Parse([]byte("  \n"))
	if err != nil || len(empty.Nodes) != 0 {
		t.Fatalf("expected empty canvas, got %+v, %v", empty, err)
	}
	if _, err := canvas.Parse([]byte(`{"nodes": [`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidateProblems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "duplicate ids",
			doc:  `{"nodes":[{"id":"a","type":"group","width":1,"height":1},{"id":"a","type":"group","width":1,"height":1}]}`,
			want: []string{`nodes[1]: duplicate id "a" (first used by nodes[0])`},
		},
		{
			name: "edge reuses node id",
			doc:  `{"nodes":[{"id":"a","type":"group","width":1,"height":1}],"edges":[{"id":"a","fromNode":"a","toNode":"a"}]}`,
			want: []string{`edges[0]: duplicate id "a" (first used by nodes[0])`},
		},
		{
			name: "unknown type",
			doc:  `{"nodes":[{"id":"a","type":"sticky","width":1,"height":1},{"id":"b","width":1,"height":1}]}`,
			want: []string{`nodes[0].type: unknown node type "sticky"`, `nodes[1].type: missing type`},
		},
		{
			name: "non-positive size",
			doc:  `{"nodes":[{"id":"a","type":"group","width":0,"height":10}]}`,
			want: []string{`nodes[0]: size must be positive, got 0x10`},
		},
		{
			name: "missing fields",
			doc:  `{"nodes":[{"id":"a","type":"text","width":1,"height":1},{"id":"b","type":"file","width":1,"height":1},{"id":"c","type":"link","width":1,"height":1,"url":" "}]}`,
			want: []string{`nodes[0].text: text node has no text`, `nodes[1].file: file node has no file`, `nodes[2].url: link node has no url`},
		},
		{
			name: "dangling edge and bad sides",
			doc:  `{"nodes":[{"id":"a","type":"group","width":1,"height":1}],"edges":[{"id":"e","fromNode":"a","toNode":"zz","fromSide":"middle","toSide":"top"}]}`,
			want: []string{`edges[0].toNode: unknown node "zz"`, `edges[0].fromSide: invalid side "middle"`},
		},
		{
			name: "missing id",
			doc:  `{"nodes":[{"type":"group","width":1,"height":1}]}`,
			want: []string{`nodes[0]: missing id`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := canvas.Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			problems := c.Validate()
			got := make([]string, 0, len(problems))
			for _, p := range problems {
				got = append(got, p.String())
			}
			if strings.Join(got, "\n") != strings.Join(tt.want, "\n") {
				t.Fatalf("problems mismatch:\ngot:  %q\nwant: %q", got, tt.want)
			}
		})
	}
}
