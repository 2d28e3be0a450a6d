package controller

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/forms"
	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/autofill/writer"
	"github.com/xkilldash9x/cvfill/internal/observability"
)

// Fill writes rec into the forms of the last scan and returns the number of
// fields written. It is the entry point for callers that hold a decoded
// record instead of a protocol request.
func (c *Controller) Fill(ctx context.Context, rec *profile.Record) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	detected, _ := c.registry.Snapshot()
	if len(detected) == 0 {
		return 0, ErrNoForms
	}
	return c.fill(ctx, detected, rec), nil
}

// fill resolves and writes every classified field. Fields without a value,
// without a matching option, or failing to write are skipped; only writes
// that happened are counted. Callers hold c.mu.
func (c *Controller) fill(ctx context.Context, detected []forms.DetectedForm, rec *profile.Record) int {
	defer c.setState(StateIdle)

	filled := 0
	// One write per radio group; the writer picks the matching radio itself.
	radioGroups := make(map[string]bool)

	for _, form := range detected {
		for _, field := range form.Fields {
			if ctx.Err() != nil {
				c.logger.Info("Fill interrupted.", zap.Int("fields_filled", filled), zap.Error(ctx.Err()))
				return filled
			}

			if field.Type == "radio" && field.Name != "" {
				key := form.ContainerRef + "\x00" + field.Name
				if radioGroups[key] {
					continue
				}
				radioGroups[key] = true
			}

			c.setState(StateResolving)
			value, ok := c.resolver.Resolve(field.Classification, rec, profile.FieldContext{
				Name:        field.Name,
				ID:          field.ID,
				Label:       field.Label,
				Placeholder: field.Placeholder,
			})
			if !ok {
				continue
			}

			c.setState(StateWriting)
			written, err := c.writer.Write(ctx, writer.Target{Node: field.Node, Selector: field.Selector, Type: field.Type}, value)
			if err != nil {
				c.logger.Warn("Failed to write field.",
					zap.String("selector", field.Selector),
					zap.String("classification", string(field.Classification)),
					zap.Error(err))
				continue
			}
			if written {
				filled++
				c.logger.Debug("Field written.",
					zap.String("selector", field.Selector),
					zap.String("classification", string(field.Classification)),
					observability.Redacted("value", value))
			}
		}
	}

	c.logger.Info("Fill complete.", zap.Int("fields_filled", filled), zap.Int("forms", len(detected)))
	return filled
}

// checkSite refuses fills on pages whose host is, or is a subdomain of, an
// excluded site.
func (c *Controller) checkSite(ctx context.Context) *schemas.Response {
	if len(c.cfg.ExcludedSites) == 0 {
		return nil
	}
	raw, err := c.page.URL(ctx)
	if err != nil {
		c.logger.Debug("Could not read page URL for site exclusion.", zap.Error(err))
		return nil
	}
	host := hostOf(raw)
	if host == "" {
		return nil
	}
	for _, site := range c.cfg.ExcludedSites {
		site = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(site), "."))
		if site == "" {
			continue
		}
		if host == site || strings.HasSuffix(host, "."+site) {
			c.logger.Info("Fill refused on excluded site.", zap.String("host", host))
			return schemas.Fail(schemas.ErrCodeSiteExcluded, "Autofill is disabled for this site")
		}
	}
	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
