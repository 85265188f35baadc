package discord

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrNoMessages reports a payload that normalized to zero messages.
var ErrNoMessages = errors.New("payload contains no messages")

// InputKind classifies the shape of an externally sourced JSON value.
type InputKind int

// Input kinds accepted by NormalizeMessages.
const (
	InputOther InputKind = iota
	InputEmpty
	InputArray
	InputWrapper
	InputSingle
)

func (k InputKind) String() string {
	switch k {
	case InputEmpty:
		return "empty"
	case InputArray:
		return "array"
	case InputWrapper:
		return "wrapper"
	case InputSingle:
		return "single"
	default:
		return "other"
	}
}

// ClassifyInput reports which of the accepted payload shapes raw has.
// A wrapper is an object whose "messages" field is an array.
func ClassifyInput(raw any) InputKind {
	switch v := raw.(type) {
	case nil:
		return InputEmpty
	case []any:
		return InputArray
	case map[string]any:
		if _, ok := v["messages"].([]any); ok {
			return InputWrapper
		}
		return InputSingle
	default:
		return InputOther
	}
}

// NormalizeMessages converts a decoded JSON value into messages. It accepts
// nil, arrays (flattened recursively), {"messages": [...]} wrappers, and bare
// message objects. Anything else yields no messages.
func NormalizeMessages(raw any) []Message {
	switch ClassifyInput(raw) {
	case InputArray:
		var out []Message
		for _, item := range raw.([]any) {
			out = append(out, NormalizeMessages(item)...)
		}
		return out
	case InputWrapper:
		return NormalizeMessages(raw.(map[string]any)["messages"])
	case InputSingle:
		return []Message{normalizeMessage(raw.(map[string]any))}
	default:
		return nil
	}
}

// DecodeJSON decodes data keeping numbers as json.Number so snowflake ids
// survive intact.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode json: trailing data after value")
	}
	return raw, nil
}

// ParseMessages decodes a JSON payload and normalizes it into messages.
func ParseMessages(data []byte) ([]Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	raw, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return NormalizeMessages(raw), nil
}

// ParseCitation decodes a citation payload: either {"id", "messages"} or an
// object carrying "id" whose remaining fields describe a single message.
func ParseCitation(data []byte) (Citation, error) {
	raw, err := DecodeJSON(data)
	if err != nil {
		return Citation{}, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Citation{}, errors.New("citation payload must be a JSON object")
	}
	id := strings.TrimSpace(stringOf(obj["id"]))
	if id == "" {
		return Citation{}, errors.New("citation payload has no id")
	}

	var messages []Message
	if list, present := obj["messages"]; present {
		if ClassifyInput(obj) == InputWrapper {
			messages = NormalizeMessages(list)
		}
	} else if hasMessageField(obj) {
		rest := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != "id" {
				rest[k] = v
			}
		}
		messages = NormalizeMessages(rest)
	}
	if len(messages) == 0 {
		return Citation{ID: id}, fmt.Errorf("citation %s: %w", id, ErrNoMessages)
	}
	return Citation{ID: id, Messages: messages}, nil
}

// messageFields are the keys that make an object a message rather than a
// bare citation header.
var messageFields = []string{"content", "author", "timestamp", "url", "jumpUrl", "jump_url"}

func hasMessageField(obj map[string]any) bool {
	for _, key := range messageFields {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func normalizeMessage(obj map[string]any) Message {
	msg := Message{
		ID:        stringOf(obj["id"]),
		Content:   stringOf(obj["content"]),
		Timestamp: stringOf(obj["timestamp"]),
		AvatarURL: firstString(obj, "avatarUrl", "avatar_url"),
		URL:       firstString(obj, "url", "jumpUrl", "jump_url"),
	}

	switch author := obj["author"].(type) {
	case map[string]any:
		msg.Author = normalizeAuthor(author)
		if msg.AvatarURL == "" {
			msg.AvatarURL = firstString(author, "avatarUrl", "avatar_url")
		}
	case string:
		msg.Author = Author{Username: author}
	}
	return msg
}

func normalizeAuthor(obj map[string]any) Author {
	author := Author{
		ID:          stringOf(obj["id"]),
		DisplayName: firstString(obj, "displayName", "display_name", "global_name", "globalName", "nick"),
		Username:    firstString(obj, "username", "name"),
	}
	for _, key := range []string{"color", "colour", "colour_value"} {
		if value, ok := obj[key]; ok {
			if color, ok := NormalizeColor(value); ok {
				author.Color = color
				break
			}
		}
	}
	return author
}

var (
	rgbColorPattern = regexp.MustCompile(`(?i)^rgba?\(\s*[0-9.,%/\s]+\)$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// NormalizeColor converts a color from a message payload to a CSS color.
// Integers (and numeric strings) are 24-bit RGB values, strings may be 3 or 6
// digit hex with or without '#' (3 digits expand to 6), and rgb()/rgba() strings pass through
// unchanged. The boolean is false when input is not a recognizable color.
func NormalizeColor(input any) (string, bool) {
	switch v := input.(type) {
	case int:
		return colorFromInt(int64(v))
	case int64:
		return colorFromInt(v)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return "", false
		}
		return colorFromInt(int64(v))
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return "", false
		}
		return colorFromInt(n)
	case string:
		return colorFromString(v)
	default:
		return "", false
	}
}

func colorFromInt(n int64) (string, bool) {
	if n < 0 || n > 0xFFFFFF {
		return "", false
	}
	return fmt.Sprintf("#%06x", n), true
}

func colorFromString(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if rgbColorPattern.MatchString(s) {
		return s, true
	}
	if digitsPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return "", false
		}
		return colorFromInt(n)
	}
	hex := strings.ToLower(strings.TrimPrefix(s, "#"))
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	c, err := colorful.Hex("#" + hex)
	// colorful scans leniently, so only an exact round trip counts as valid.
	if err != nil || c.Hex() != "#"+hex {
		return "", false
	}
	return c.Hex(), true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(stringOf(obj[key])); s != "" {
			return s
		}
	}
	return ""
}

func stringOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
