// browser/dom/controls.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// SelectOption describes an <option> of a select element.
type SelectOption struct {
	// Index is the option's position in select.options.
	Index    int
	Text     string
	Value    string
	Disabled bool
}

// Options lists the option elements of a select in document order, matching
// the indexing of select.options.
func Options(sel *html.Node) []*html.Node {
	var out []*html.Node
	walk(sel, func(n *html.Node) bool {
		if IsElement(n, "option") {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// ExtractSelectOptions parses the options of a select, honoring disabled
// optgroups. A missing value attribute means the text is the value.
func ExtractSelectOptions(sel *html.Node) []SelectOption {
	nodes := Options(sel)
	options := make([]SelectOption, 0, len(nodes))
	for i, n := range nodes {
		text := TextContent(n)
		value, ok := "", false
		for _, a := range n.Attr {
			if a.Namespace == "" && strings.EqualFold(a.Key, "value") {
				value, ok = a.Val, true
			}
		}
		if !ok {
			value = text
		}

		disabled := hasAttr(n, "disabled")
		if !disabled && n.Parent != nil && IsElement(n.Parent, "optgroup") && hasAttr(n.Parent, "disabled") {
			disabled = true
		}

		options = append(options, SelectOption{Index: i, Text: text, Value: value, Disabled: disabled})
	}
	return options
}

// RadioGroup returns the radios sharing radio's name within its form, or the
// formless radios of the document when it has no form. The result includes
// radio itself.
func RadioGroup(radio *html.Node) []*html.Node {
	name := attr(radio, "name")
	if name == "" {
		return []*html.Node{radio}
	}
	form := Closest(radio, "form")
	scope := form
	if scope == nil {
		scope = Root(radio)
	}

	var out []*html.Node
	walk(scope, func(n *html.Node) bool {
		if IsElement(n, "input") && ControlType(n) == "radio" && attr(n, "name") == name {
			if form != nil || Closest(n, "form") == nil {
				out = append(out, n)
			}
		}
		return true
	})
	return out
}
