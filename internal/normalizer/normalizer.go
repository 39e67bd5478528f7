// Package normalizer maps the loosely shaped JSON returned by the webhook
// into an ordered sequence of display items.
//
// Both steps are ordered lists of pure rules evaluated first-match-wins:
// PayloadRules pick the raw element sequence out of the payload, and the
// field rules project each raw element onto a DisplayItem.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/young1lin/agentsearch/internal/models"
)

// PayloadRule extracts the raw element sequence from a payload
type PayloadRule func(payload any) ([]any, bool)

// FieldRule extracts one display field from a raw element
type FieldRule func(element map[string]any) (string, bool)

// PayloadRules is the payload precedence, first match wins
var PayloadRules = []PayloadRule{
	wholeSequence,
	sequenceField("result"),
	sequenceField("items"),
	sequenceField("messages"),
	sequenceField("videos"),
	sequenceField("reply"),
	sequenceField("message"),
	scalarText("text", "message", "answer", "replyText"),
	serialized,
}

var (
	TitleRules = []FieldRule{textField("title"), textField("name"), textField("message"), textField("text")}
	MetaRules  = []FieldRule{textField("channel"), textField("source"), textField("description")}
	URLRules   = []FieldRule{textField("url"), textField("link")}
)

// Decode parses a webhook body, keeping numbers in their original textual form
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return payload, nil
}

// Normalize converts a decoded webhook payload into display items.
// Scalars and null match no rule and produce an empty sequence.
func Normalize(payload any) []models.DisplayItem {
	raw := Extract(payload)
	items := make([]models.DisplayItem, 0, len(raw))
	for _, element := range raw {
		items = append(items, Project(element))
	}
	return items
}

// Extract applies PayloadRules and returns the first match
func Extract(payload any) []any {
	for _, rule := range PayloadRules {
		if elements, ok := rule(payload); ok {
			return elements
		}
	}
	return nil
}

// Project converts one raw element into a DisplayItem
func Project(element any) models.DisplayItem {
	switch v := element.(type) {
	case map[string]any:
		return models.DisplayItem{
			Title:    firstMatch(TitleRules, v),
			MetaText: firstMatch(MetaRules, v),
			URL:      firstMatch(URLRules, v),
		}
	case string:
		return models.DisplayItem{Title: v}
	default:
		return models.DisplayItem{}
	}
}

func firstMatch(rules []FieldRule, element map[string]any) string {
	for _, rule := range rules {
		if s, ok := rule(element); ok {
			return s
		}
	}
	return ""
}

func wholeSequence(payload any) ([]any, bool) {
	seq, ok := payload.([]any)
	return seq, ok
}

func sequenceField(key string) PayloadRule {
	return func(payload any) ([]any, bool) {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, false
		}
		seq, ok := obj[key].([]any)
		return seq, ok
	}
}

func scalarText(keys ...string) PayloadRule {
	return func(payload any) ([]any, bool) {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, false
		}
		for _, key := range keys {
			if s, ok := scalarString(obj[key]); ok {
				return []any{map[string]any{"title": s}}, true
			}
		}
		return nil, false
	}
}

// serialized titles an unrecognized object with its JSON text. Keys come
// out sorted, not in the order the webhook sent them. Numbers are printed
// in shortest form (1.50 becomes 1.5).
func serialized(payload any) ([]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(shortestNumbers(obj)); err != nil {
		return nil, false
	}
	return []any{map[string]any{"title": string(bytes.TrimRight(buf.Bytes(), "\n"))}}, true
}

// shortestNumbers copies v with every json.Number turned into a float64,
// which encoding/json prints in shortest round-trip form
func shortestNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = shortestNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = shortestNumbers(e)
		}
		return out
	default:
		return v
	}
}

func textField(key string) FieldRule {
	return func(element map[string]any) (string, bool) {
		return scalarString(element[key])
	}
}

// scalarString reports whether v is a non-empty text-like scalar:
// a non-empty string, a non-zero number, or true.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case json.Number:
		if f, err := s.Float64(); err == nil && f == 0 {
			return "", false
		}
		return s.String(), true
	case float64:
		if s == 0 {
			return "", false
		}
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		if s {
			return "true", true
		}
	}
	return "", false
}
