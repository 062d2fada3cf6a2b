package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/policy"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// EffectApplier carries out one resolution side effect. Failures are
// logged by the engine and never unwind the resolution.
type EffectApplier func(ctx context.Context, c Conflict, effect SideEffect) error

// Engine evaluates the strategy chain against conflicts and keeps the
// persisted active set in step with the outcomes.
type Engine struct {
	store      *store.Store
	strategies []Strategy
	effects    EffectApplier
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategies replaces the default chain.
func WithStrategies(strategies []Strategy) Option {
	return func(e *Engine) { e.strategies = strategies }
}

// WithEffectApplier installs a side-effect handler. The default only
// logs each effect.
func WithEffectApplier(apply EffectApplier) Option {
	return func(e *Engine) { e.effects = apply }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the wall clock used for detection timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine over the store's active conflict set. The
// strategy chain is sorted by descending priority once, at
// construction; order among equal priorities is preserved.
func New(st *store.Store, pol policy.Policy, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		strategies: DefaultStrategies(pol),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	sort.SliceStable(e.strategies, func(i, j int) bool {
		return e.strategies[i].Priority > e.strategies[j].Priority
	})
	return e
}

// Resolve evaluates the chain against one conflict and applies the
// outcome's side effects best-effort. It does not touch the persisted
// active set; see ResolveRecord for that.
func (e *Engine) Resolve(ctx context.Context, c Conflict) Outcome {
	if c.Preference == "" && e.store != nil {
		pref, err := e.store.Preference(ctx, c.EntityType, c.Field)
		if err != nil {
			e.logger.Warn("preference lookup failed",
				"entityType", c.EntityType, "field", c.Field, "error", err)
		} else {
			c.Preference = pref
		}
	}

	for _, s := range e.strategies {
		if !s.Applies(c) {
			continue
		}
		out := s.Resolve(c)
		out.Strategy = s.Name
		e.applyEffects(ctx, c, out)
		e.logger.Debug("conflict evaluated",
			"entityType", c.EntityType, "entityId", c.EntityID, "field", c.Field,
			"strategy", out.Strategy, "success", out.Success, "confidence", out.Confidence)
		return out
	}

	// Unreachable with the default chain: the manual fallback always
	// matches.
	return Outcome{Explanation: "no strategy matched"}
}

// Record persists a detected conflict into the active set and returns
// its id. Re-detecting the same (entity, field) divergence replaces the
// stored values.
func (e *Engine) Record(ctx context.Context, c Conflict) (int64, error) {
	rec, err := ToRecord(c, e.now())
	if err != nil {
		return 0, fmt.Errorf("record conflict: %w", err)
	}
	return e.store.SaveConflict(ctx, rec)
}

// ResolveRecord evaluates a persisted conflict and removes it from the
// active set only when the outcome succeeded without requiring user
// confirmation. Any other outcome leaves the record for later manual
// resolution.
func (e *Engine) ResolveRecord(ctx context.Context, rec store.ConflictRecord) (Outcome, error) {
	c, err := FromRecord(rec)
	if err != nil {
		return Outcome{}, err
	}
	out := e.Resolve(ctx, c)
	if out.Success && !out.RequiresUserConfirmation {
		if err := e.store.DeleteConflict(ctx, rec.ID); err != nil {
			return out, fmt.Errorf("clear resolved conflict %d: %w", rec.ID, err)
		}
	}
	return out, nil
}

func (e *Engine) applyEffects(ctx context.Context, c Conflict, out Outcome) {
	for _, effect := range out.SideEffects {
		if e.effects == nil {
			e.logger.Info("resolution side effect",
				"kind", effect.Kind, "target", effect.Target,
				"entityType", c.EntityType, "entityId", c.EntityID, "strategy", out.Strategy)
			continue
		}
		if err := e.effects(ctx, c, effect); err != nil {
			e.logger.Warn("resolution side effect failed",
				"kind", effect.Kind, "target", effect.Target, "error", err)
		}
	}
}
