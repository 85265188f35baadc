package exporter

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/euforicio/wikicord/internal/discord"
)

var flattenMarker = regexp.MustCompile(`(?i)\{\{discord-cite:([a-z0-9-]+)\}\}|<!--\s*discord-cite:([a-z0-9-]+)\s*-->`)

// discordFlattener rewrites Discord content into plain Markdown quotes so
// renderers without raw HTML support (PDF) still show the conversation.
// Citation callouts are lifted out, markers become numbered references, and
// the cited threads are appended as a final section.
type discordFlattener struct {
	citations map[string]discord.Citation
	order     []string
	numbers   map[string]int
}

func flattenDiscord(raw []byte) ([]byte, error) {
	f := &discordFlattener{
		citations: make(map[string]discord.Citation),
		numbers:   make(map[string]int),
	}
	body, err := f.liftBlocks(raw)
	if err != nil {
		return nil, err
	}
	out, err := f.substitute(body)
	if err != nil {
		return nil, err
	}
	if len(f.order) > 0 {
		var b bytes.Buffer
		b.Write(out)
		b.WriteString("\n## Discord citations\n\n")
		for _, id := range f.order {
			fmt.Fprintf(&b, "**[%d]**\n\n", f.numbers[id])
			b.WriteString(discord.FormatQuote(f.citations[id].Messages))
			b.WriteString("\n")
		}
		out = b.Bytes()
	}
	return out, nil
}

// liftBlocks converts ```discord fences into quotes and removes citation
// callouts, remembering their payloads. Blocks that fail to parse are kept.
//
//nolint:gocognit // single pass line scanner
func (f *discordFlattener) liftBlocks(raw []byte) ([]byte, error) {
	var (
		out         bytes.Buffer
		scanner     = bufio.NewScanner(bytes.NewReader(raw))
		inFence     bool
		fenceMarker string
		fenceLang   string
		fenceLines  bytes.Buffer
		callout     []string
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	flushCallout := func() {
		if len(callout) == 0 {
			return
		}
		if citation, ok := parseCalloutLines(callout); ok {
			f.citations[citation.ID] = citation
		} else {
			for _, line := range callout {
				writeLine(&out, line)
			}
		}
		callout = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if len(callout) > 0 {
			if strings.HasPrefix(trimmed, ">") {
				callout = append(callout, line)
				continue
			}
			flushCallout()
		}

		if !inFence {
			if strings.HasPrefix(strings.ToLower(trimmed), "> [!"+discord.CitationName) {
				callout = append(callout, line)
				continue
			}
			if marker, lang, ok := parseFenceStart(trimmed); ok {
				inFence = true
				fenceMarker = marker
				fenceLang = lang
				fenceLines.Reset()
				if !isDiscordFence(lang) {
					writeLine(&out, line)
				}
				continue
			}
			writeLine(&out, line)
			continue
		}

		if isFenceEnd(trimmed, fenceMarker) {
			if isDiscordFence(fenceLang) {
				messages, err := discord.ParseMessages(fenceLines.Bytes())
				if err != nil || len(messages) == 0 {
					writeLine(&out, fenceMarker+fenceLang)
					out.Write(fenceLines.Bytes())
					writeLine(&out, fenceMarker)
				} else {
					out.WriteString(discord.FormatQuote(messages))
					out.WriteString("\n")
				}
			} else {
				writeLine(&out, line)
			}
			inFence = false
			fenceMarker = ""
			fenceLang = ""
			continue
		}

		if isDiscordFence(fenceLang) {
			writeLine(&fenceLines, line)
		} else {
			writeLine(&out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flushCallout()

	if inFence && isDiscordFence(fenceLang) {
		writeLine(&out, fenceMarker+fenceLang)
		out.Write(fenceLines.Bytes())
	}
	return out.Bytes(), nil
}

// substitute replaces markers outside fences with numbered references.
func (f *discordFlattener) substitute(raw []byte) ([]byte, error) {
	var (
		out         bytes.Buffer
		scanner     = bufio.NewScanner(bytes.NewReader(raw))
		fenceMarker string
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if fenceMarker != "" {
			if isFenceEnd(trimmed, fenceMarker) {
				fenceMarker = ""
			}
			writeLine(&out, line)
			continue
		}
		if marker, _, ok := parseFenceStart(trimmed); ok {
			fenceMarker = marker
			writeLine(&out, line)
			continue
		}
		writeLine(&out, flattenMarker.ReplaceAllStringFunc(line, f.reference))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (f *discordFlattener) reference(marker string) string {
	m := flattenMarker.FindStringSubmatch(marker)
	id := m[1] + m[2]
	if _, ok := f.citations[id]; !ok {
		return marker
	}
	n, ok := f.numbers[id]
	if !ok {
		n = len(f.order) + 1
		f.numbers[id] = n
		f.order = append(f.order, id)
	}
	return fmt.Sprintf("[%d]", n)
}

// parseCalloutLines strips the quote prefix from a citation callout and
// decodes the first fenced payload inside it.
func parseCalloutLines(lines []string) (discord.Citation, bool) {
	var (
		payload bytes.Buffer
		marker  string
		done    bool
	)
	for _, line := range lines[1:] {
		content := strings.TrimPrefix(strings.TrimSpace(line), ">")
		content = strings.TrimPrefix(content, " ")
		trimmed := strings.TrimSpace(content)
		if done {
			break
		}
		if marker == "" {
			if m, _, ok := parseFenceStart(trimmed); ok {
				marker = m
			}
			continue
		}
		if isFenceEnd(trimmed, marker) {
			done = true
			continue
		}
		writeLine(&payload, content)
	}
	if !done {
		return discord.Citation{}, false
	}
	citation, err := discord.ParseCitation(payload.Bytes())
	if err != nil || len(citation.Messages) == 0 {
		return discord.Citation{}, false
	}
	return citation, true
}

func parseFenceStart(line string) (marker, lang string, ok bool) {
	for _, ch := range []rune{'`', '~'} {
		fence := strings.Repeat(string(ch), 3)
		if strings.HasPrefix(line, fence) {
			marker = line[:leadingCount(line, ch)]
			lang = strings.TrimSpace(strings.TrimPrefix(line, marker))
			return marker, lang, true
		}
	}
	return "", "", false
}

func isFenceEnd(line, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.TrimRight(line, string(marker[0])) == "" && len(line) >= len(marker)
}

func isDiscordFence(lang string) bool {
	fields := strings.Fields(lang)
	return len(fields) > 0 && strings.EqualFold(fields[0], discord.FenceLanguage)
}

func leadingCount(line string, char rune) int {
	count := 0
	for _, r := range line {
		if r != char {
			break
		}
		count++
	}
	return count
}

func writeLine(buf *bytes.Buffer, line string) {
	buf.WriteString(line)
	buf.WriteByte('\n')
}
