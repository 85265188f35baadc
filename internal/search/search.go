// Package search finds Discord citations and message links across markdown
// notes using ripgrep.
package search

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/euforicio/wikicord/internal/discord"
)

// Options controls the behavior of the ripgrep search.
type Options struct {
	IncludeGlobs  []string
	ExcludeGlobs  []string
	Context       int
	CaseSensitive bool
	FixedStrings  bool
	SearchHidden  bool
}

var markerPattern = regexp.MustCompile(`\{\{discord-cite:([A-Za-z0-9-]+)\}\}|<!--\s*discord-cite:([A-Za-z0-9-]+)\s*-->`)

// markdownGlobs restricts searches to notes.
var markdownGlobs = []string{"*.md", "*.markdown"}

// referencePattern matches citation markers in both spellings and message
// links, in ripgrep's regex dialect.
const referencePattern = `\{\{discord-cite:[A-Za-z0-9-]+\}\}|<!--\s*discord-cite:[A-Za-z0-9-]+\s*-->|https?://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(?:@me|[0-9]+)/[0-9]+/[0-9]+`

// ReferenceKind distinguishes citation markers from bare message links.
type ReferenceKind string

// Reference kinds reported by References.
const (
	ReferenceMarker ReferenceKind = "marker"
	ReferenceLink   ReferenceKind = "link"
)

// Reference is one place a note points at Discord content.
type Reference struct {
	Path string        `json:"path"`
	Kind ReferenceKind `json:"kind"`
	// ID is the citation id for markers and the message id for links.
	ID   string `json:"id"`
	URL  string `json:"url,omitempty"`
	Line int    `json:"line"`
}

// Result represents a single match from ripgrep.
type Result struct {
	Path     string        `json:"path"`
	Match    string        `json:"match"`
	LineText string        `json:"lineText"`
	Before   []LineSnippet `json:"before,omitempty"`
	After    []LineSnippet `json:"after,omitempty"`
	Line     int           `json:"line"`
	Column   int           `json:"column"`
}

// LineSnippet captures contextual lines around a match.
type LineSnippet struct {
	Text string `json:"text"`
	Line int    `json:"line"`
}

// Service executes ripgrep searches rooted at the repository.
type Service struct {
	logger *slog.Logger
	root   string
}

// NewService constructs a ripgrep-backed search service rooted at the notes directory.
func NewService(root string, logger *slog.Logger) (*Service, error) {
	if root == "" {
		return nil, errors.New("root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := exec.LookPath("rg"); err != nil {
		return nil, fmt.Errorf("ripgrep executable not found in PATH: %w", err)
	}

	return &Service{root: abs, logger: logger.With("component", "search")}, nil
}

// Search executes ripgrep with the provided query and options.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query cannot be empty")
	}

	cmd := exec.CommandContext(ctx, "rg", opts.args(query)...)
	cmd.Dir = s.root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start rg: %w", err)
	}

	results, err := decodeResults(stdout, opts.Context)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	// rg exits 1 when nothing matched.
	var exitErr *exec.ExitError
	switch err := cmd.Wait(); {
	case err == nil:
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
	case exitErr != nil:
		return nil, fmt.Errorf("rg error (exit %d): %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	default:
		return nil, err
	}
	s.logger.Debug("search finished", slog.String("query", query), slog.Int("matches", len(results)))
	return results, nil
}

func (o Options) args(query string) []string {
	args := []string{"--json", "--line-number", "--color=never", "--no-heading"}
	if o.FixedStrings {
		args = append(args, "--fixed-strings")
	}
	if o.CaseSensitive {
		args = append(args, "--case-sensitive")
	} else {
		args = append(args, "--smart-case")
	}
	if o.Context > 0 {
		args = append(args, "-C", strconv.Itoa(o.Context))
	}
	if o.SearchHidden {
		args = append(args, "--hidden")
	}
	for _, glob := range o.IncludeGlobs {
		if glob = strings.TrimSpace(glob); glob != "" {
			args = append(args, "--glob", glob)
		}
	}
	for _, glob := range o.ExcludeGlobs {
		if glob = strings.TrimSpace(glob); glob != "" {
			args = append(args, "--glob", "!"+strings.TrimPrefix(glob, "!"))
		}
	}
	return append(args, "--", query, "./")
}

// References lists every citation marker and message link in the notes. When
// target is set, only references to that citation id or message (link or
// id) are returned.
func (s *Service) References(ctx context.Context, target string, includeHidden bool) ([]Reference, error) {
	results, err := s.Search(ctx, referencePattern, Options{
		IncludeGlobs:  markdownGlobs,
		SearchHidden:  includeHidden,
		CaseSensitive: true,
	})
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(strings.TrimSpace(target))
	if ref, err := discord.ParseMessageURL(target); err == nil {
		want = ref.MessageID
	}

	var refs []Reference
	for _, res := range results {
		for _, ref := range referencesIn(res) {
			if want != "" && strings.ToLower(ref.ID) != want {
				continue
			}
			refs = append(refs, ref)
		}
	}
	// rg searches files in parallel, so output order varies between runs.
	slices.SortStableFunc(refs, func(a, b Reference) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Line, b.Line))
	})
	return refs, nil
}

// referencesIn extracts every reference on a matched line. ripgrep reports
// only the first submatch position, so the line is rescanned.
func referencesIn(res Result) []Reference {
	path := strings.TrimPrefix(filepath.ToSlash(res.Path), "./")
	var refs []Reference
	for _, loc := range markerPattern.FindAllStringSubmatch(res.LineText, -1) {
		refs = append(refs, Reference{Path: path, Line: res.Line, Kind: ReferenceMarker, ID: loc[1] + loc[2]})
	}
	for _, link := range discord.ExtractMessageURLs(res.LineText) {
		ref, err := discord.ParseMessageURL(link)
		if err != nil {
			continue
		}
		refs = append(refs, Reference{Path: path, Line: res.Line, Kind: ReferenceLink, ID: ref.MessageID, URL: link})
	}
	return refs
}

// rgEvent is one line of `rg --json` output. Only match and context events
// carry the fields decoded here.
type rgEvent struct {
	Type string `json:"type"`
	Data struct {
		Path       rgText `json:"path"`
		Lines      rgText `json:"lines"`
		LineNumber int    `json:"line_number"`
		Submatches []struct {
			Match rgText `json:"match"`
			Start int    `json:"start"`
		} `json:"submatches"`
	} `json:"data"`
}

type rgText struct {
	Text string `json:"text"`
}

// decodeResults reads rg's JSON stream. Context lines are collected per
// file and attached to each match once the stream ends, since rg emits
// trailing context after the match it belongs to.
func decodeResults(r io.Reader, window int) ([]Result, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var (
		results []Result
		surrounding = make(map[string]map[int]string)
	)
	for {
		var ev rgEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode ripgrep output: %w", err)
		}
		d := ev.Data
		text := strings.TrimRight(d.Lines.Text, "\n")
		switch ev.Type {
		case "match":
			res := Result{Path: d.Path.Text, Line: d.LineNumber, LineText: text}
			if len(d.Submatches) > 0 {
				res.Match = d.Submatches[0].Match.Text
				res.Column = d.Submatches[0].Start + 1
			}
			results = append(results, res)
		case "context":
			if window == 0 {
				continue
			}
			if surrounding[d.Path.Text] == nil {
				surrounding[d.Path.Text] = make(map[int]string)
			}
			surrounding[d.Path.Text][d.LineNumber] = text
		}
	}

	if window > 0 {
		for i := range results {
			attachContext(&results[i], surrounding[results[i].Path], window)
		}
	}
	return results, nil
}

func attachContext(res *Result, lines map[int]string, window int) {
	for n := res.Line - window; n < res.Line; n++ {
		if text, ok := lines[n]; ok {
			res.Before = append(res.Before, LineSnippet{Line: n, Text: text})
		}
	}
	for n := res.Line + 1; n <= res.Line+window; n++ {
		if text, ok := lines[n]; ok {
			res.After = append(res.After, LineSnippet{Line: n, Text: text})
		}
	}
}
