package forms

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/internal/browser/dom"
)

// Detector runs a full scan of a page: snapshot, scan, classify, aggregate.
type Detector struct {
	scanner    *dom.Scanner
	aggregator *Aggregator
}

// NewDetector creates a detector with the default rule table.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		scanner:    dom.NewScanner(logger),
		aggregator: NewAggregator(logger),
	}
}

// Scan snapshots page and collects its candidate controls.
func (d *Detector) Scan(ctx context.Context, page dom.Page) ([]dom.Group, error) {
	doc, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return d.scanner.Scan(doc), nil
}

// Classify turns scanned groups into detected forms.
func (d *Detector) Classify(groups []dom.Group) []DetectedForm {
	return d.aggregator.Build(groups)
}

// Detect is Scan followed by Classify.
func (d *Detector) Detect(ctx context.Context, page dom.Page) ([]DetectedForm, error) {
	groups, err := d.Scan(ctx, page)
	if err != nil {
		return nil, err
	}
	return d.Classify(groups), nil
}
