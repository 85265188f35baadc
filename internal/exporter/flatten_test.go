package exporter

import (
	"strings"
	"testing"
)

const flattenSource = "# Notes\n\nAs agreed {{discord-cite:cite-a}} and <!-- discord-cite:CITE-A --> again {{discord-cite:missing}}.\n\n" +
	"```discord\n{\"author\": {\"username\": \"carol\"}, \"content\": \"inline thread\"}\n```\n\n" +
	"```go\n// {{discord-cite:cite-a}}\n```\n\n" +
	"> [!discord-cite]- Discord citation (1 message)\n" +
	"> **alice**: ship it\n" +
	">\n" +
	"> ```json\n" +
	"> {\"id\":\"cite-a\",\"messages\":[{\"author\":{\"username\":\"alice\"},\"content\":\"ship it\"}]}\n" +
	"> ```\n\n" +
	"Trailing paragraph.\n"

func TestFlattenDiscord(t *testing.T) {
	t.Parallel()

	out, err := flattenDiscord([]byte(flattenSource))
	if err != nil {
		t.Fatalf("flattenDiscord: %v", err)
	}
	got := string(out)

	if !strings.Contains(got, "As agreed [1] and <!-- discord-cite:CITE-A --> again {{discord-cite:missing}}.") {
		t.Fatalf("expected markers numbered and unknown marker kept, got:\n%s", got)
	}
	if !strings.Contains(got, "> **carol**\n> inline thread\n") {
		t.Fatalf("expected discord fence flattened to a quote, got:\n%s", got)
	}
	if !strings.Contains(got, "```go\n// {{discord-cite:cite-a}}\n```") {
		t.Fatalf("expected markers inside code fences untouched, got:\n%s", got)
	}
	if strings.Contains(got, "[!discord-cite]") || strings.Contains(got, "```discord") {
		t.Fatalf("expected citation callout and discord fence removed, got:\n%s", got)
	}
	if !strings.Contains(got, "Trailing paragraph.") {
		t.Fatalf("expected content after the callout kept")
	}
	idx := strings.Index(got, "## Discord citations")
	if idx < 0 || !strings.Contains(got[idx:], "**[1]**\n\n> **alice**\n> ship it\n") {
		t.Fatalf("expected cited thread appended, got:\n%s", got)
	}
}

func TestFlattenKeepsInvalidBlocks(t *testing.T) {
	t.Parallel()

	src := "```discord\nnot json\n```\n\n> [!discord-cite]\n> ```json\n> {\"id\": \"x\"}\n> ```\n"
	out, err := flattenDiscord([]byte(src))
	if err != nil {
		t.Fatalf("flattenDiscord: %v", err)
	}
	if string(out) != src {
		t.Fatalf("expected invalid blocks left as written, got:\n%s", out)
	}
}
