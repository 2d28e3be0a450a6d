// browser/dom/node.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// hasAttr reports whether the attribute is present, regardless of value.
// Boolean attributes such as disabled are usually written without one.
func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

// Attr exposes attribute lookup to packages that work on snapshot nodes.
func Attr(n *html.Node, key string) string { return attr(n, key) }

// HasAttr exposes boolean attribute lookup to packages that work on snapshot nodes.
func HasAttr(n *html.Node, key string) bool { return hasAttr(n, key) }

// IsElement reports whether n is an element with the given tag name.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

// walk visits n and its descendants in document order. Returning false from
// fn skips the descendants of the node just visited.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// Walk is the exported form of walk.
func Walk(n *html.Node, fn func(*html.Node) bool) { walk(n, fn) }

// TextContent returns the whitespace-collapsed text of n and its descendants.
func TextContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Root returns the top of the tree containing n.
func Root(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// Closest returns the nearest ancestor of n (excluding n) with the given tag.
func Closest(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if IsElement(p, tag) {
			return p
		}
	}
	return nil
}
