// browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// GenerateUniqueXPath builds an XPath expression addressing node. It anchors on
// the nearest ancestor-or-self with an id, otherwise it is absolute with
// positional steps.
func GenerateUniqueXPath(node *html.Node) string {
	if node == nil {
		return ""
	}

	var steps []string
	anchored := false
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode || n.Data == "" {
			continue
		}

		if id := attr(n, "id"); id != "" && isUniqueID(n, id) {
			steps = append(steps, "//*[@id="+Literal(id)+"]")
			anchored = true
			break
		}

		tag := strings.ToLower(n.Data)
		position := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, tag) {
				position++
			}
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, position))
	}

	if len(steps) == 0 {
		return "/"
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	xpath := strings.Join(steps, "/")
	if !anchored {
		xpath = "/" + xpath
	}
	return xpath
}

// Literal quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds become a concat() call.
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// isUniqueID reports whether no other element in node's document carries id.
// Pages in the wild duplicate ids, and anchoring on one would address the
// wrong element.
func isUniqueID(node *html.Node, id string) bool {
	root := node
	for root.Parent != nil {
		root = root.Parent
	}
	count := 0
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			count++
		}
		return count < 2
	})
	return count == 1
}
