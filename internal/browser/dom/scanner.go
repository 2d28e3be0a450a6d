// browser/dom/scanner.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Candidate is a fillable control found in a snapshot, with the signals the
// classifier reads from it.
type Candidate struct {
	Node     *html.Node
	Selector string

	Tag         string
	Type        string
	Name        string
	ID          string
	Placeholder string
	Label       string
	ClassName   string
	// AriaText is the aria-label and aria-labelledby text, appended to the signal.
	AriaText string
	Required bool
}

// Group is a container of candidates: a <form>, or the synthetic formless
// group holding controls outside any form.
type Group struct {
	Container *html.Node
	Selector  string
	// Index is the container's position among all discovered containers.
	// The formless group takes the index after the last form.
	Index      int
	Formless   bool
	Candidates []Candidate
}

// nonFillableTypes are input types that never receive profile data.
var nonFillableTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
	"file":   true,
}

// Scanner finds fillable controls in a document snapshot.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a scanner.
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger.Named("scanner")}
}

// Scan walks doc in document order and returns one group per <form> followed
// by the formless group when any control lives outside a form. Form groups are
// returned even when empty so that indices stay stable.
func (s *Scanner) Scan(doc *html.Node) []Group {
	if doc == nil {
		return nil
	}

	var groups []Group
	byForm := make(map[*html.Node]int)
	formsByID := make(map[string]*html.Node)
	var controls []*html.Node

	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch strings.ToLower(n.Data) {
		case "form":
			byForm[n] = len(groups)
			groups = append(groups, Group{Container: n, Selector: GenerateUniqueXPath(n), Index: len(groups)})
			if id := attr(n, "id"); id != "" {
				if _, dup := formsByID[id]; !dup {
					formsByID[id] = n
				}
			}
		case "input", "select", "textarea":
			controls = append(controls, n)
		case "template":
			// Template content is inert.
			return false
		}
		return true
	})

	formless := Group{Index: len(groups), Formless: true}
	skipped := 0
	for _, n := range controls {
		if reason, ok := excluded(n); ok {
			skipped++
			s.logger.Debug("Skipping control.", zap.String("tag", n.Data), zap.String("name", attr(n, "name")), zap.String("reason", reason))
			continue
		}

		c := s.candidate(doc, n)
		form := owningForm(n, formsByID)
		if idx, ok := byForm[form]; ok && form != nil {
			groups[idx].Candidates = append(groups[idx].Candidates, c)
			continue
		}
		formless.Candidates = append(formless.Candidates, c)
	}
	if len(formless.Candidates) > 0 {
		groups = append(groups, formless)
	}

	s.logger.Debug("Scan complete.",
		zap.Int("containers", len(groups)),
		zap.Int("controls", len(controls)),
		zap.Int("skipped", skipped),
	)
	return groups
}

// owningForm honors the form="id" attribute before falling back to the
// enclosing form element.
func owningForm(n *html.Node, formsByID map[string]*html.Node) *html.Node {
	if id := attr(n, "form"); id != "" {
		if f, ok := formsByID[id]; ok {
			return f
		}
	}
	return Closest(n, "form")
}

func (s *Scanner) candidate(doc, n *html.Node) Candidate {
	c := Candidate{
		Node:        n,
		Selector:    GenerateUniqueXPath(n),
		Tag:         strings.ToLower(n.Data),
		Type:        ControlType(n),
		Name:        attr(n, "name"),
		ID:          attr(n, "id"),
		Placeholder: collapse(attr(n, "placeholder")),
		ClassName:   collapse(attr(n, "class")),
		Required:    hasAttr(n, "required") || strings.EqualFold(attr(n, "aria-required"), "true"),
	}

	ariaLabel := collapse(attr(n, "aria-label"))
	labelledBy := labelledByText(doc, n)
	c.AriaText = collapse(ariaLabel + " " + labelledBy)
	c.Label = resolveLabel(doc, n, ariaLabel, labelledBy)
	return c
}

// ControlType reports the DOM "type" of a control: the lowercased type
// attribute for inputs (default "text"), "textarea", or "select-one" /
// "select-multiple".
func ControlType(n *html.Node) string {
	switch strings.ToLower(n.Data) {
	case "textarea":
		return "textarea"
	case "select":
		if hasAttr(n, "multiple") {
			return "select-multiple"
		}
		return "select-one"
	}
	t := strings.ToLower(strings.TrimSpace(attr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

// excluded reports whether a control must never be classified, and why.
func excluded(n *html.Node) (string, bool) {
	if IsElement(n, "input") && nonFillableTypes[ControlType(n)] {
		return "type:" + ControlType(n), true
	}
	if hasAttr(n, "disabled") || strings.EqualFold(attr(n, "aria-disabled"), "true") {
		return "disabled", true
	}
	if f := Closest(n, "fieldset"); f != nil && hasAttr(f, "disabled") {
		return "disabled-fieldset", true
	}
	if hasAttr(n, "readonly") {
		return "readonly", true
	}
	if strings.EqualFold(attr(n, "aria-readonly"), "true") {
		return "aria-readonly", true
	}
	if hasAttr(n, "contenteditable") && !strings.EqualFold(attr(n, "contenteditable"), "false") {
		return "contenteditable", true
	}
	if isHidden(n) {
		return "hidden", true
	}
	return "", false
}

// isHidden combines the live layout verdict carried by HiddenMarkerAttr with
// what can be read statically: the hidden attribute and inline display or
// visibility on the node or any ancestor.
func isHidden(n *html.Node) bool {
	if hasAttr(n, HiddenMarkerAttr) {
		return true
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if hasAttr(p, "hidden") {
			return true
		}
		if style := attr(p, "style"); style != "" && hiddenByStyle(style) {
			return true
		}
	}
	return false
}

func hiddenByStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch {
		case prop == "display" && val == "none":
			return true
		case prop == "visibility" && (val == "hidden" || val == "collapse"):
			return true
		}
	}
	return false
}

// resolveLabel tries, in order, an explicit <label for>, the enclosing label's
// own text, aria-label and aria-labelledby. An empty result is not an error.
func resolveLabel(doc, n *html.Node, ariaLabel, labelledBy string) string {
	if id := attr(n, "id"); id != "" {
		if label, err := htmlquery.Query(doc, "//label[@for="+Literal(id)+"]"); err == nil && label != nil {
			if text := labelText(label); text != "" {
				return text
			}
		}
	}
	if label := Closest(n, "label"); label != nil {
		if text := directText(label); text != "" {
			return text
		}
	}
	if ariaLabel != "" {
		return ariaLabel
	}
	return labelledBy
}

func labelledByText(doc, n *html.Node) string {
	ids := strings.Fields(attr(n, "aria-labelledby"))
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		ref, err := htmlquery.Query(doc, "//*[@id="+Literal(id)+"]")
		if err != nil || ref == nil {
			continue
		}
		if text := TextContent(ref); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// labelText is the text of a label without the text of controls nested in it.
func labelText(label *html.Node) string {
	var b strings.Builder
	walk(label, func(c *html.Node) bool {
		if c.Type == html.ElementNode {
			switch strings.ToLower(c.Data) {
			case "input", "select", "textarea", "button", "option", "script", "style":
				return c == label
			}
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return collapse(b.String())
}

// directText joins the label's own text node children only.
func directText(label *html.Node) string {
	var b strings.Builder
	for c := label.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return collapse(b.String())
}
