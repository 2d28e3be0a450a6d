package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/forms"
	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
)

func (c *Controller) handleDetectForms(ctx context.Context, reg *forms.Registry, req *schemas.Request) *schemas.Response {
	detected, err := c.scan(ctx, reg)
	if err != nil {
		c.logger.Warn("Form detection failed.", zap.Error(err))
		return schemas.Fail(schemas.ErrCodeExecutionFailure, fmt.Sprintf("Failed to scan page: %v", err))
	}

	highlight := req.Highlight == nil || *req.Highlight
	if highlight {
		persist := c.cfg.PersistHighlights
		if req.PersistHighlights != nil {
			persist = *req.PersistHighlights
		}
		c.showOverlays(ctx, detected, persist)
	}

	count := len(detected)
	return &schemas.Response{
		Success:    true,
		Forms:      forms.ToSchema(detected),
		FormsCount: &count,
	}
}

func (c *Controller) handleCheckForForms(_ context.Context, reg *forms.Registry, _ *schemas.Request) *schemas.Response {
	found := reg.Len() > 0
	return &schemas.Response{Success: true, FormsFound: &found}
}

func (c *Controller) handleAutoFill(ctx context.Context, reg *forms.Registry, req *schemas.Request) *schemas.Response {
	if resp := c.checkSite(ctx); resp != nil {
		return resp
	}
	rec, resp := decodeProfile(req)
	if resp != nil {
		return schemas.FillFailed(resp.Code, resp.Message)
	}

	detected, err := c.scan(ctx, reg)
	if err != nil {
		c.logger.Warn("Scan before fill failed.", zap.Error(err))
		return schemas.Fail(schemas.ErrCodeExecutionFailure, fmt.Sprintf("Failed to scan page: %v", err))
	}
	if len(detected) == 0 {
		return schemas.Filled(0, "No forms detected")
	}
	return filledResponse(c.fill(ctx, detected, rec))
}

// handlePerformFill fills the forms of the previous scan without rescanning.
func (c *Controller) handlePerformFill(ctx context.Context, reg *forms.Registry, req *schemas.Request) *schemas.Response {
	if resp := c.checkSite(ctx); resp != nil {
		return resp
	}
	detected, _ := reg.Snapshot()
	if len(detected) == 0 {
		return schemas.FillFailed(schemas.ErrCodeNoForms, "No forms detected. Please detect forms first.")
	}
	rec, resp := decodeProfile(req)
	if resp != nil {
		return schemas.FillFailed(resp.Code, resp.Message)
	}
	return filledResponse(c.fill(ctx, detected, rec))
}

func (c *Controller) handleClearHighlightsAndFill(ctx context.Context, reg *forms.Registry, req *schemas.Request) *schemas.Response {
	if err := c.clearOverlays(ctx); err != nil {
		c.logger.Debug("Failed to clear overlays before fill.", zap.Error(err))
	}
	return c.handleAutoFill(ctx, reg, req)
}

func filledResponse(n int) *schemas.Response {
	if n == 1 {
		return schemas.Filled(n, "Filled 1 field")
	}
	return schemas.Filled(n, fmt.Sprintf("Filled %d fields", n))
}

// decodeProfile reads the request's profile payload. A missing payload and an
// unparsable one are distinct failures.
func decodeProfile(req *schemas.Request) (*profile.Record, *schemas.Response) {
	raw := req.Profile()
	if raw == nil {
		return nil, schemas.Fail(schemas.ErrCodeNoData, "No CV data provided")
	}
	rec, err := profile.Decode(raw)
	if err != nil {
		return nil, schemas.Fail(schemas.ErrCodeInvalidParameters, fmt.Sprintf("Invalid CV data: %v", err))
	}
	return rec, nil
}
