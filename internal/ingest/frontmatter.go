// Package ingest turns submitted markdown into a source record with
// extracted atoms. The pipeline is front matter parse, LLM summarization,
// merge, validate, attach raw text, persist, then best-effort embed and
// extract.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the metadata parsed out of a document's YAML header.
type FrontMatter struct {
	Title         string
	URL           string
	Author        string
	PublishedDate string
	Tags          []string
}

// Published-date aliases in priority order; the first present key wins.
var publishedDateAliases = []string{"date", "publishedDate", "published", "publishedAt", "datePublished"}

var urlAliases = []string{"url", "link", "source"}

// ParseFrontMatter splits markdown into its YAML front matter and body.
// A document without a front matter block returns an empty FrontMatter and
// the whole input as body.
func ParseFrontMatter(markdown string) (*FrontMatter, string, error) {
	trimmed := strings.TrimLeft(markdown, "\uFEFF\n\r ")
	if !strings.HasPrefix(trimmed, "---") {
		return &FrontMatter{}, markdown, nil
	}
	rest := trimmed[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return &FrontMatter{}, markdown, nil
	}
	header := rest[:idx]
	body := rest[idx+4:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(header), &raw); err != nil {
		return nil, "", fmt.Errorf("malformed front matter: %w", err)
	}

	fm := &FrontMatter{
		Title:  stringValue(raw["title"]),
		Author: stringValue(raw["author"]),
	}
	for _, k := range urlAliases {
		if v := stringValue(raw[k]); v != "" {
			fm.URL = v
			break
		}
	}
	for _, k := range publishedDateAliases {
		if v, ok := raw[k]; ok {
			if s := dateValue(v); s != "" {
				fm.PublishedDate = s
				break
			}
		}
	}
	fm.Tags = tagValues(raw["tags"])
	return fm, body, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

// dateValue normalizes a front matter date. yaml.v3 decodes timestamp
// scalars as time.Time; plain strings pass through untouched.
func dateValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case string:
		return strings.TrimSpace(t)
	default:
		return ""
	}
}

func tagValues(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
