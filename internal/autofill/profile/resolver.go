package profile

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/internal/autofill/rules"
)

// Resolver maps a category to a value of a profile record.
type Resolver struct {
	logger *zap.Logger
	now    func() time.Time
	chains map[rules.Category]Chain
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces the clock used for undated date fields.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a resolver with the default fallback chains.
func NewResolver(logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		logger: logger.Named("resolver"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.chains = defaultChains(r.now)
	return r
}

// Resolve returns the value for category, or false when the profile has none.
func (r *Resolver) Resolve(category rules.Category, rec *Record, f FieldContext) (string, bool) {
	v, _, ok := r.ResolveSource(category, rec, f)
	return v, ok
}

// ResolveSource is Resolve plus the path the value was read from.
// A strategy that panics on a malformed profile yields no value.
func (r *Resolver) ResolveSource(category rules.Category, rec *Record, f FieldContext) (value, source string, ok bool) {
	if rec.IsEmpty() || category == rules.None {
		return "", "", false
	}
	chain, known := r.chains[category]
	if !known {
		return "", "", false
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("Value strategy panicked, treating as no value.",
				zap.String("category", string(category)),
				zap.Any("panic", p))
			value, source, ok = "", "", false
		}
	}()
	return chain.resolve(rec, f)
}
