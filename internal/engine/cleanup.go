package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/memhive/internal/model"
)

// deleteConcurrency bounds concurrent deletes during cleanup.
const deleteConcurrency = 8

// Quotas caps the live population of each category per agent and location.
// Core is never evicted; exceeding its quota is only reported.
var Quotas = map[model.Category]int{
	model.CategoryRecent: 1000,
	model.CategoryTasks:  500,
	model.CategoryCore:   MaxCoreMemories,
}

// CleanupOptions tunes a cleanup run.
type CleanupOptions struct {
	// ExpiredOnly skips quota enforcement.
	ExpiredOnly bool `json:"expiredOnly,omitempty"`

	// Scopes to clean; private and personal are allowed. Defaults to private.
	Scopes []model.Scope `json:"scopes,omitempty"`

	// Now overrides the expiry reference time.
	Now *time.Time `json:"now,omitempty"`
}

// CleanupResult reports what a cleanup run removed.
type CleanupResult struct {
	Expired int      `json:"expired"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors"`
}

// Cleanup removes the caller's expired memories and then evicts the oldest
// live recent and tasks memories above their quotas. Per-record failures are
// collected in Errors and never abort the run.
func (e *Engine) Cleanup(ctx context.Context, c Caller, opts CleanupOptions) (*CleanupResult, error) {
	const op = "cleanup"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []model.Scope{model.ScopePrivate}
	}
	for _, s := range scopes {
		if !s.Individual() {
			return nil, newError(op, KindValidation, map[string]any{"scope": s}, "cleanup only covers private and personal scope, got %q", s)
		}
	}
	now := e.clock()
	if opts.Now != nil {
		now = opts.Now.UTC()
	}

	res := &CleanupResult{Errors: []string{}}
	for _, s := range scopes {
		if err := e.cleanupScope(ctx, op, c, s, now, opts.ExpiredOnly, res); err != nil {
			return nil, err
		}
	}
	e.logger.Info("cleanup finished", "agent", c.AgentID, "project", c.ProjectID,
		"expired", res.Expired, "deleted", res.Deleted, "errors", len(res.Errors))
	return res, nil
}

func (e *Engine) cleanupScope(ctx context.Context, op string, c Caller, s model.Scope, now time.Time, expiredOnly bool, res *CleanupResult) error {
	loc, err := e.ensure(ctx, op, c, s)
	if err != nil {
		return err
	}
	inventory, err := e.router.ListByPrefix(ctx, loc, model.AgentPrefix(c.AgentID))
	if err != nil {
		return classify(op, err)
	}
	inventory = ownedBy(inventory, c.AgentID)

	var expired, live []model.Memory
	for _, m := range inventory {
		if m.Expired(now) {
			expired = append(expired, m)
		} else {
			live = append(live, m)
		}
	}

	n, errs := e.deleteAll(ctx, loc, expired)
	res.Expired += n
	res.Errors = append(res.Errors, errs...)
	if expiredOnly {
		return nil
	}

	victims, overCore := quotaVictims(live)
	if overCore > 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: core memories over quota (%d/%d); core memories are never evicted",
			s, overCore, Quotas[model.CategoryCore]))
	}
	n, errs = e.deleteAll(ctx, loc, victims)
	res.Deleted += n
	res.Errors = append(res.Errors, errs...)
	return nil
}

// quotaVictims picks the oldest memories of each evictable category beyond
// its quota. It also returns the core population when that exceeds its quota.
func quotaVictims(live []model.Memory) (victims []model.Memory, overCore int) {
	byCat := map[model.Category][]model.Memory{}
	for _, m := range live {
		byCat[m.Category] = append(byCat[m.Category], m)
	}
	for _, cat := range []model.Category{model.CategoryRecent, model.CategoryTasks} {
		group, limit := byCat[cat], Quotas[cat]
		if len(group) <= limit {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})
		victims = append(victims, group[:len(group)-limit]...)
	}
	if n := len(byCat[model.CategoryCore]); n > Quotas[model.CategoryCore] {
		overCore = n
	}
	return victims, overCore
}

// deleteAll removes every memory in ms from loc with bounded concurrency and
// returns how many were actually removed plus per-record error messages.
func (e *Engine) deleteAll(ctx context.Context, loc model.Location, ms []model.Memory) (int, []string) {
	var (
		removed atomic.Int64
		mu      sync.Mutex
		errs    []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, m := range ms {
		key := m.Key()
		g.Go(func() error {
			existed, err := e.router.Delete(gctx, loc, key)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				mu.Unlock()
				return nil
			}
			if existed {
				removed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(removed.Load()), errs
}
