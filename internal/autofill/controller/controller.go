// Package controller answers the autofill message protocol for one page. It
// owns the registry of detected forms and serializes scans and fills.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/forms"
	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/autofill/writer"
	"github.com/xkilldash9x/cvfill/internal/browser/dom"
	"github.com/xkilldash9x/cvfill/internal/config"
)

// ErrNoForms is returned by Fill when the registry holds no forms.
var ErrNoForms = errors.New("no forms detected")

// State is the phase of the request currently being served.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateClassifying
	StateResolving
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateClassifying:
		return "classifying"
	case StateResolving:
		return "resolving"
	case StateWriting:
		return "writing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Handler serves one action. The registry is passed explicitly so handlers
// hold no page state of their own.
type Handler func(ctx context.Context, reg *forms.Registry, req *schemas.Request) *schemas.Response

// ScanListener receives the result of every completed scan.
type ScanListener func(update schemas.FormsUpdate)

// Controller serves protocol requests against a page.
type Controller struct {
	page     dom.Page
	cfg      config.AutofillConfig
	logger   *zap.Logger
	registry *forms.Registry
	detector *forms.Detector
	resolver *profile.Resolver
	writer   *writer.Writer
	listener ScanListener

	handlers map[schemas.Action]Handler

	// mu serializes scans and fills so each runs to completion.
	mu    sync.Mutex
	state atomic.Int32

	overlayMu    sync.Mutex
	overlayTimer *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithResolver replaces the default value resolver.
func WithResolver(r *profile.Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithScanListener registers a listener notified after every scan.
func WithScanListener(l ScanListener) Option {
	return func(c *Controller) { c.listener = l }
}

// New creates a controller for page.
func New(page dom.Page, cfg config.AutofillConfig, logger *zap.Logger, opts ...Option) *Controller {
	logger = logger.Named("controller")
	c := &Controller{
		page:     page,
		cfg:      cfg,
		logger:   logger,
		registry: forms.NewRegistry(),
		detector: forms.NewDetector(logger),
		writer:   writer.New(page, logger, cfg),
		handlers: make(map[schemas.Action]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = profile.NewResolver(logger)
	}
	c.registerHandlers()
	return c
}

func (c *Controller) registerHandlers() {
	c.handlers[schemas.ActionDetectForms] = c.handleDetectForms
	c.handlers[schemas.ActionCheckForForms] = c.handleCheckForForms
	c.handlers[schemas.ActionAutoFill] = c.handleAutoFill
	c.handlers[schemas.ActionPerformFill] = c.handlePerformFill
	c.handlers[schemas.ActionClearHighlightsAndFill] = c.handleClearHighlightsAndFill
	c.handlers[schemas.ActionGenerateMappings] = c.handleGenerateMappings
}

// Handle serves a single request. It always returns a response; failures are
// reported in it rather than as errors.
func (c *Controller) Handle(ctx context.Context, req *schemas.Request) (resp *schemas.Response) {
	if req == nil {
		return schemas.Fail(schemas.ErrCodeInvalidParameters, "Empty request")
	}

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("Panic while handling request.", zap.String("action", string(req.Action)), zap.Any("panic", p))
			c.setState(StateIdle)
			resp = schemas.Fail(schemas.ErrCodeExecutionFailure, "Internal error")
			resp.RequestID = req.RequestID
		}
	}()

	handler, ok := c.handlers[req.Action]
	if !ok {
		c.logger.Debug("Unknown action.", zap.String("action", string(req.Action)))
		resp = schemas.Fail(schemas.ErrCodeUnknownAction, "Unknown action")
		resp.RequestID = req.RequestID
		return resp
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	resp = handler(ctx, c.registry, req)
	resp.RequestID = req.RequestID
	return resp
}

// Rescan rebuilds the registry. The mutation watcher calls it.
func (c *Controller) Rescan(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.scan(ctx, c.registry)
	return err
}

// Reset forgets the detected forms. It is called when the page replaces its
// document, since selectors of the old document must never be written.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlayMu.Lock()
	if c.overlayTimer != nil {
		c.overlayTimer.Stop()
		c.overlayTimer = nil
	}
	c.overlayMu.Unlock()

	c.registry.Clear()
	c.logger.Debug("Detected forms cleared.")
	if c.listener != nil {
		c.listener(schemas.FormsUpdate{
			Type:      "formsUpdated",
			Forms:     []schemas.Form{},
			Timestamp: time.Now().UTC(),
		})
	}
}

// State reports the phase of the request in flight.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Registry exposes the registry for read-only inspection.
func (c *Controller) Registry() *forms.Registry {
	return c.registry
}

// Close cancels a pending overlay auto-clear.
func (c *Controller) Close() {
	c.overlayMu.Lock()
	defer c.overlayMu.Unlock()
	if c.overlayTimer != nil {
		c.overlayTimer.Stop()
		c.overlayTimer = nil
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// scan runs scanning then classifying and replaces the registry. Callers hold c.mu.
func (c *Controller) scan(ctx context.Context, reg *forms.Registry) ([]forms.DetectedForm, error) {
	defer c.setState(StateIdle)

	c.setState(StateScanning)
	groups, err := c.detector.Scan(ctx, c.page)
	if err != nil {
		return nil, err
	}

	c.setState(StateClassifying)
	detected := c.detector.Classify(groups)

	scanID := uuid.NewString()
	reg.Replace(scanID, detected)

	fields := 0
	for _, f := range detected {
		fields += len(f.Fields)
	}
	c.logger.Debug("Scan complete.", zap.String("scan_id", scanID), zap.Int("forms", len(detected)), zap.Int("fields", fields))

	if c.listener != nil {
		c.listener(schemas.FormsUpdate{
			Type:       "formsUpdated",
			ScanID:     scanID,
			Forms:      forms.ToSchema(detected),
			FormsCount: len(detected),
			Timestamp:  time.Now().UTC(),
		})
	}
	return detected, nil
}

// showOverlays outlines the detected forms. Unless persist is set they are
// removed again after the configured overlay duration.
func (c *Controller) showOverlays(ctx context.Context, detected []forms.DetectedForm, persist bool) {
	refs := forms.Containers(detected)
	if len(refs) == 0 {
		return
	}

	c.overlayMu.Lock()
	defer c.overlayMu.Unlock()
	if c.overlayTimer != nil {
		c.overlayTimer.Stop()
		c.overlayTimer = nil
	}

	if err := c.page.HighlightForms(ctx, refs); err != nil {
		c.logger.Warn("Failed to highlight forms.", zap.Error(err))
		return
	}
	if persist || c.cfg.OverlayDuration <= 0 {
		return
	}
	c.overlayTimer = time.AfterFunc(c.cfg.OverlayDuration, func() {
		if err := c.page.ClearHighlights(context.Background()); err != nil {
			c.logger.Debug("Failed to clear form overlays.", zap.Error(err))
		}
	})
}

// clearOverlays removes overlays now and cancels a pending auto-clear.
func (c *Controller) clearOverlays(ctx context.Context) error {
	c.overlayMu.Lock()
	defer c.overlayMu.Unlock()
	if c.overlayTimer != nil {
		c.overlayTimer.Stop()
		c.overlayTimer = nil
	}
	return c.page.ClearHighlights(ctx)
}
