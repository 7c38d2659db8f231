// Package sanitize reduces feed-provided HTML to an allowlisted subset
// and extracts plain text for word counts and model input.
package sanitize

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedTags maps each permitted element to its permitted attributes.
// Everything else is unwrapped (children kept) or, for the members of
// droppedTags, removed with its whole subtree.
var allowedTags = map[string][]string{
	"a":          {"href", "title"},
	"abbr":       {"title"},
	"acronym":    {"title"},
	"b":          nil,
	"blockquote": nil,
	"br":         nil,
	"code":       nil,
	"em":         nil,
	"h1":         nil,
	"h2":         nil,
	"h3":         nil,
	"h4":         nil,
	"h5":         nil,
	"h6":         nil,
	"i":          nil,
	"img":        {"src", "alt", "title"},
	"li":         nil,
	"ol":         nil,
	"p":          nil,
	"pre":        nil,
	"strong":     nil,
	"ul":         nil,
}

var droppedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"iframe":   true,
	"noscript": true,
	"object":   true,
	"embed":    true,
	"form":     true,
	"input":    true,
	"button":   true,
}

// blockTags separate text runs when extracting plain text.
var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "tr": true, "table": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// Clean parses the fragment and renders it back with only allowlisted
// tags and attributes. Unparseable input is returned escaped as text.
func Clean(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	nodes, err := parseFragment(fragment)
	if err != nil {
		var b strings.Builder
		_ = html.Render(&b, &html.Node{Type: html.TextNode, Data: fragment})
		return b.String()
	}

	var b strings.Builder
	for _, node := range nodes {
		if clean := cleanNode(node); clean != nil {
			_ = html.Render(&b, clean)
		}
	}
	return strings.TrimSpace(b.String())
}

// Text extracts the readable text of the fragment, one line per block,
// with runs of whitespace collapsed.
func Text(fragment string) string {
	nodes, err := parseFragment(fragment)
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var b strings.Builder
	for _, node := range nodes {
		collectText(&b, node)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// WordCount counts whitespace-separated words in already-extracted text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func parseFragment(fragment string) ([]*html.Node, error) {
	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	return html.ParseFragment(strings.NewReader(fragment), root)
}

// cleanNode builds a sanitized copy of the subtree, or nil when the
// whole subtree is dropped. Unwrapped elements become a DocumentNode
// container, which renders as its children only.
func cleanNode(node *html.Node) *html.Node {
	switch node.Type {
	case html.TextNode:
		return &html.Node{Type: html.TextNode, Data: node.Data}
	case html.ElementNode:
		name := strings.ToLower(node.Data)
		if droppedTags[name] {
			return nil
		}
		attrs, allowed := allowedTags[name]

		var clean *html.Node
		if allowed {
			clean = &html.Node{Type: html.ElementNode, DataAtom: node.DataAtom, Data: name}
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if !attrAllowed(attrs, key) {
					continue
				}
				if (key == "href" || key == "src") && !safeURL(attr.Val) {
					continue
				}
				clean.Attr = append(clean.Attr, html.Attribute{Key: key, Val: attr.Val})
			}
		} else {
			clean = &html.Node{Type: html.DocumentNode}
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if cleanChild := cleanNode(child); cleanChild != nil {
				clean.AppendChild(cleanChild)
			}
		}
		return clean
	default:
		// Comments, doctypes and the like are dropped
		return nil
	}
}

func attrAllowed(attrs []string, key string) bool {
	for _, allowed := range attrs {
		if key == allowed {
			return true
		}
	}
	return false
}

func safeURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "", "http", "https", "mailto":
		return true
	default:
		return false
	}
}

func collectText(b *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode:
		b.WriteString(node.Data)
	case html.ElementNode:
		name := strings.ToLower(node.Data)
		if droppedTags[name] {
			return
		}
		if blockTags[name] {
			b.WriteString("\n")
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			collectText(b, child)
		}
		if blockTags[name] {
			b.WriteString("\n")
		}
	}
}
