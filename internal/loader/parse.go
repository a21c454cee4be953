package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"
)

// Format identifies how a document's bytes were turned into text.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8192

var formatByExt = map[string]Format{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".mdx":      FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
}

// DetectFormat returns the parsing format for a file name. Anything not
// recognized is read as plain text.
func DetectFormat(name string) Format {
	if f, ok := formatByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return f
	}
	return FormatText
}

// frontmatterPattern matches a leading YAML front matter block.
var frontmatterPattern = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---[ \t]*(?:\r?\n|\z)`)

// errUnsupported marks content no parser can turn into text.
type errUnsupported struct {
	reason string
}

func (e *errUnsupported) Error() string { return e.reason }

// parse converts raw file bytes into document text and extra metadata.
func parse(format Format, data []byte) (string, map[string]string, error) {
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return "", nil, &errUnsupported{reason: "binary content"}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", nil, &errUnsupported{reason: "content is not valid UTF-8 text"}
	}

	switch format {
	case FormatMarkdown:
		text, meta := parseMarkdown(string(data))
		return text, meta, nil
	case FormatHTML:
		return parseHTML(data)
	default:
		return string(data), nil, nil
	}
}

// parseMarkdown strips YAML front matter and returns its scalar values as
// metadata. Malformed front matter is left in the text untouched.
func parseMarkdown(text string) (string, map[string]string) {
	loc := frontmatterPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(text[loc[2]:loc[3]]), &fields); err != nil {
		return text, nil
	}

	meta := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := scalarString(v); ok {
			meta[k] = s
		}
	}
	return text[loc[1]:], meta
}

// scalarString flattens YAML scalars and lists of scalars.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case time.Time:
		return val.Format(time.RFC3339), true
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(val), true
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := scalarString(item)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

// blockElements end a run of text; each produces its own paragraph.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// skippedElements never contribute visible text.
var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Iframe: true,
}

// parseHTML extracts the visible text of an HTML document. Block elements
// become paragraphs separated by blank lines; whitespace inside a paragraph
// is collapsed. The <title> goes into metadata.
func parseHTML(data []byte) (string, map[string]string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		sb    strings.Builder
		title string
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title {
				title = strings.Join(strings.Fields(nodeText(n)), " ")
				return
			}
			if blockElements[n.DataAtom] {
				sb.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(collapseSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(root)

	var paragraphs []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if collapsed := strings.Join(strings.Fields(line), " "); collapsed != "" {
			paragraphs = append(paragraphs, collapsed)
		}
	}

	var meta map[string]string
	if title != "" {
		meta = map[string]string{"title": title}
	}
	return strings.Join(paragraphs, "\n\n"), meta, nil
}

// collapseSpace folds every whitespace run into one space, as a browser
// renders inline text.
func collapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteRune(r)
	}
	if space {
		sb.WriteByte(' ')
	}
	return sb.String()
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// sortedKeys is used to keep metadata iteration deterministic in logs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
