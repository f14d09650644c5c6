// Package parser derives a note's title and tags from what the user typed:
// optional YAML front matter, a heading or first line, and inline #tags.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// MaxTitleLen is the longest title derived from a note's first line.
const MaxTitleLen = 80

var tagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}][\p{L}\p{N}_/-]*)`)

// Result holds the output of parsing note content.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Tags        []string
	Title       string
	Pinned      bool
}

// Parse splits off front matter and derives title and tags. Invalid front
// matter is kept as body text.
func Parse(content string) Result {
	fm, body := splitFrontmatter(content)
	pinned, _ := fm["pinned"].(bool)
	return Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
		Pinned:      pinned,
	}
}

// splitFrontmatter separates YAML front matter (between leading ---
// delimiters) from the body. Without it the whole content is body.
func splitFrontmatter(content string) (map[string]any, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(content, "\n\r")
	if !strings.HasPrefix(trimmed, delim) {
		return nil, content
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, content
	}
	block := rest[:idx]
	body := strings.TrimLeft(rest[idx+1+len(delim):], "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, content
	}
	return fm, body
}

// extractTags collects front matter tags (a list or a comma-separated
// string) followed by inline #tags, without duplicates.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the front matter title, else the first Markdown
// heading, else the first non-empty line cut to MaxTitleLen runes.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if h := strings.TrimLeft(trimmed, "#"); h != trimmed && strings.HasPrefix(h, " ") {
			return strings.TrimSpace(h)
		}
		if first == "" {
			first = trimmed
		}
	}
	return truncate(first, MaxTitleLen)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// MergeTags appends the tags of extra missing from base.
func MergeTags(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, t := range list {
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
