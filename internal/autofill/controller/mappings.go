package controller

import (
	"context"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/forms"
	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/autofill/rules"
	"github.com/xkilldash9x/cvfill/internal/browser/dom"
)

// handleGenerateMappings classifies described fields and resolves their values
// without touching the page.
func (c *Controller) handleGenerateMappings(_ context.Context, _ *forms.Registry, req *schemas.Request) *schemas.Response {
	rec, resp := decodeProfile(req)
	if resp != nil {
		return resp
	}
	if len(req.FormFields) == 0 {
		return schemas.Fail(schemas.ErrCodeInvalidParameters, "No form fields provided")
	}
	return GenerateMappings(c.resolver, rec, req.FormFields)
}

// GenerateMappings pairs every descriptor with the category and value it
// would receive in a fill. Descriptors without a category or a value are
// listed as unmapped.
func GenerateMappings(resolver *profile.Resolver, rec *profile.Record, fields []schemas.FieldDescriptor) *schemas.Response {
	mappings := make([]schemas.FieldMapping, 0, len(fields))
	unmapped := make([]string, 0)

	for _, fd := range fields {
		name := fd.Name
		if name == "" {
			name = fd.ID
		}

		signal := forms.Signal(dom.Candidate{
			Name:        fd.Name,
			ID:          fd.ID,
			Placeholder: fd.Placeholder,
			Label:       fd.Label,
			ClassName:   fd.ClassName,
			AriaText:    fd.AriaLabel,
		})
		category, ok := rules.Classify(signal)
		if !ok {
			unmapped = append(unmapped, name)
			continue
		}

		value, source, ok := resolver.ResolveSource(category, rec, profile.FieldContext{
			Name:        fd.Name,
			ID:          fd.ID,
			Label:       fd.Label,
			Placeholder: fd.Placeholder,
		})
		if !ok {
			unmapped = append(unmapped, name)
			continue
		}
		mappings = append(mappings, schemas.FieldMapping{
			FieldName:      name,
			Classification: string(category),
			CVPath:         source,
			Value:          value,
		})
	}

	total, mapped := len(fields), len(mappings)
	return &schemas.Response{
		Success:        true,
		Mappings:       mappings,
		UnmappedFields: unmapped,
		TotalFields:    &total,
		MappedFields:   &mapped,
	}
}
