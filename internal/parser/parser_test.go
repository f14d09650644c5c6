package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	r := Parse("---\ntitle: Hello\npinned: true\ntags:\n  - go\n  - glide\n---\n# Heading\nBody #later text.\n")
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if !r.Pinned {
		t.Error("pinned not read from front matter")
	}
	if want := []string{"go", "glide", "later"}; !reflect.DeepEqual(r.Tags, want) {
		t.Errorf("tags = %v, want %v", r.Tags, want)
	}
	if r.Body != "# Heading\nBody #later text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_TitleSources(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"h1", "# Just a heading\nSome text.", "Just a heading"},
		{"h2 after text", "intro line\n## Section\n", "Section"},
		{"first line", "\n\n  buy milk and eggs  \nsecond", "buy milk and eggs"},
		{"hashtag is not heading", "#todo call the bank", "#todo call the bank"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Parse(tc.in).Title; got != tc.want {
				t.Errorf("title = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParse_LongFirstLineTruncated(t *testing.T) {
	r := Parse(strings.Repeat("word ", 40))
	if n := len([]rune(r.Title)); n > MaxTitleLen {
		t.Errorf("title has %d runes", n)
	}
	if !strings.HasSuffix(r.Title, "…") {
		t.Errorf("title = %q, want ellipsis", r.Title)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	in := "---\n: invalid: yaml: {{{\n---\nBody\n"
	r := Parse(in)
	if r.Frontmatter != nil {
		t.Errorf("expected nil front matter, got %v", r.Frontmatter)
	}
	if r.Body != in {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_TagsFromStringAndInline(t *testing.T) {
	r := Parse("---\ntags: \"work, #urgent ,work\"\n---\nmeet about #budget and #café/q3 #1nope")
	want := []string{"work", "urgent", "budget", "café/q3"}
	if !reflect.DeepEqual(r.Tags, want) {
		t.Errorf("tags = %v, want %v", r.Tags, want)
	}
}

func TestParse_NoTagsIsEmptySlice(t *testing.T) {
	if r := Parse("plain"); r.Tags == nil || len(r.Tags) != 0 {
		t.Errorf("tags = %#v", r.Tags)
	}
}

func TestMergeTags(t *testing.T) {
	got := MergeTags([]string{"a", "b"}, []string{"b", "", "c"})
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MergeTags = %v, want %v", got, want)
	}
}
