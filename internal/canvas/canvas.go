// Package canvas parses and validates Obsidian JSON Canvas files.
package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Node types defined by the JSON Canvas format.
const (
	NodeText  = "text"
	NodeFile  = "file"
	NodeLink  = "link"
	NodeGroup = "group"
)

var validSides = map[string]bool{"top": true, "right": true, "bottom": true, "left": true}

// Node is a card on the canvas.
type Node struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Color  string  `json:"color,omitempty"`
	Text   string  `json:"text,omitempty"`
	File   string  `json:"file,omitempty"`
	URL    string  `json:"url,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	ToNode   string `json:"toNode"`
	FromSide string `json:"fromSide,omitempty"`
	ToSide   string `json:"toSide,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Canvas is a decoded .canvas document.
type Canvas struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Problem is a single validation finding. Path locates the offending element,
// for example nodes[2] or edges[0].toNode.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	return p.Path + ": " + p.Message
}

// Parse decodes a canvas document. An empty document is a canvas with no nodes.
func Parse(data []byte) (*Canvas, error) {
	c := &Canvas{}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode canvas: %w", err)
	}
	return c, nil
}

// Validate reports every structural problem in c. A nil result means the
// canvas is well formed.
func (c *Canvas) Validate() []Problem {
	var problems []Problem
	add := func(path, format string, args ...any) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	ids := make(map[string]string, len(c.Nodes)+len(c.Edges))
	claim := func(path, id string) {
		if strings.TrimSpace(id) == "" {
			add(path, "missing id")
			return
		}
		if prev, ok := ids[id]; ok {
			add(path, "duplicate id %q (first used by %s)", id, prev)
			return
		}
		ids[id] = path
	}

	nodes := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		claim(path, n.ID)
		nodes[n.ID] = true

		if n.Width <= 0 || n.Height <= 0 {
			add(path, "size must be positive, got %gx%g", n.Width, n.Height)
		}
		switch n.Type {
		case NodeText:
			if strings.TrimSpace(n.Text) == "" {
				add(path+".text", "text node has no text")
			}
		case NodeFile:
			if strings.TrimSpace(n.File) == "" {
				add(path+".file", "file node has no file")
			}
		case NodeLink:
			if strings.TrimSpace(n.URL) == "" {
				add(path+".url", "link node has no url")
			}
		case NodeGroup:
		case "":
			add(path+".type", "missing type")
		default:
			add(path+".type", "unknown node type %q", n.Type)
		}
	}

	for i, e := range c.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		claim(path, e.ID)
		if !nodes[e.FromNode] {
			add(path+".fromNode", "unknown node %q", e.FromNode)
		}
		if !nodes[e.ToNode] {
			add(path+".toNode", "unknown node %q", e.ToNode)
		}
		if e.FromSide != "" && !validSides[e.FromSide] {
			add(path+".fromSide", "invalid side %q", e.FromSide)
		}
		if e.ToSide != "" && !validSides[e.ToSide] {
			add(path+".toSide", "invalid side %q", e.ToSide)
		}
	}
	return problems
}
