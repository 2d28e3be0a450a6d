// Package forms turns scanned controls into classified, grouped forms and
// holds the result of the latest scan.
package forms

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/rules"
	"github.com/xkilldash9x/cvfill/internal/browser/dom"
)

// Field is a classified control. It is rebuilt on every scan.
type Field struct {
	// Node belongs to the snapshot the field was found in.
	Node     *html.Node
	Selector string

	Type        string
	Name        string
	ID          string
	Placeholder string
	Label       string
	ClassName   string
	Required    bool

	Classification rules.Category
}

// DetectedForm is a container with at least one classified field.
type DetectedForm struct {
	// ContainerRef addresses the <form> on the page. Empty for the formless group.
	ContainerRef string
	Index        int
	IsFormless   bool
	Fields       []Field
}

// Signal builds the classifier input of a candidate: name, id, placeholder,
// label and class text, followed by the ARIA text.
func Signal(c dom.Candidate) string {
	parts := []string{c.Name, c.ID, c.Placeholder, c.Label, c.ClassName, c.AriaText}
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}

// Aggregator classifies scanned groups with an ordered rule table.
type Aggregator struct {
	logger *zap.Logger
	table  []rules.Rule
}

// NewAggregator creates an aggregator using the default rule table.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return NewAggregatorWithRules(logger, rules.Table)
}

// NewAggregatorWithRules creates an aggregator with an explicit rule table.
func NewAggregatorWithRules(logger *zap.Logger, table []rules.Rule) *Aggregator {
	return &Aggregator{logger: logger.Named("aggregator"), table: table}
}

// Build classifies every candidate and keeps only the groups holding at least
// one classified field. Unclassified candidates are dropped from the result.
// Group order and field order follow document order.
func (a *Aggregator) Build(groups []dom.Group) []DetectedForm {
	var out []DetectedForm
	for _, g := range groups {
		form := DetectedForm{
			ContainerRef: g.Selector,
			Index:        g.Index,
			IsFormless:   g.Formless,
		}
		for _, c := range g.Candidates {
			category, ok := rules.ClassifyWith(a.table, Signal(c))
			if !ok {
				continue
			}
			form.Fields = append(form.Fields, Field{
				Node:           c.Node,
				Selector:       c.Selector,
				Type:           c.Type,
				Name:           c.Name,
				ID:             c.ID,
				Placeholder:    c.Placeholder,
				Label:          c.Label,
				ClassName:      c.ClassName,
				Required:       c.Required,
				Classification: category,
			})
		}
		if len(form.Fields) == 0 {
			a.logger.Debug("Dropping container without classified fields.", zap.Int("index", g.Index), zap.Bool("formless", g.Formless))
			continue
		}
		out = append(out, form)
	}
	return out
}

// ToSchema converts detected forms to their wire form.
func ToSchema(detected []DetectedForm) []schemas.Form {
	out := make([]schemas.Form, 0, len(detected))
	for _, f := range detected {
		sf := schemas.Form{Index: f.Index, IsFormless: f.IsFormless, Fields: make([]schemas.Field, 0, len(f.Fields))}
		for _, field := range f.Fields {
			var classification *string
			if field.Classification != rules.None {
				c := string(field.Classification)
				classification = &c
			}
			sf.Fields = append(sf.Fields, schemas.Field{
				Classification: classification,
				Name:           field.Name,
				ID:             field.ID,
				Placeholder:    field.Placeholder,
				Label:          field.Label,
				Required:       field.Required,
				Type:           field.Type,
			})
		}
		out = append(out, sf)
	}
	return out
}

// Containers returns the refs of the real forms, for overlays.
func Containers(detected []DetectedForm) []string {
	var refs []string
	for _, f := range detected {
		if !f.IsFormless && f.ContainerRef != "" {
			refs = append(refs, f.ContainerRef)
		}
	}
	return refs
}
