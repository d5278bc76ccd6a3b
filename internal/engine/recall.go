package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/memhive/internal/model"
)

const (
	DefaultRecallLimit = 50
	MaxRecallLimit     = 200

	// MaxSummaryBytes bounds the recall summary, ellipsis included.
	MaxSummaryBytes = 4096
	summaryEllipsis = "…"
)

// Filter narrows a set of memories. Zero fields match everything.
type Filter struct {
	Scopes        []model.Scope    `json:"scopes,omitempty"`
	Categories    []model.Category `json:"categories,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	MinPriority   int              `json:"minPriority,omitempty"`
	MaxPriority   int              `json:"maxPriority,omitempty"`
	CreatedAfter  *time.Time       `json:"createdAfter,omitempty"`
	CreatedBefore *time.Time       `json:"createdBefore,omitempty"`
	UpdatedAfter  *time.Time       `json:"updatedAfter,omitempty"`
	UpdatedBefore *time.Time       `json:"updatedBefore,omitempty"`
	Query         string           `json:"query,omitempty"`

	// Since keeps memories updated strictly after it.
	Since *time.Time `json:"since,omitempty"`
}

// Match applies every predicate except expiry.
func (f *Filter) Match(m *model.Memory) bool {
	if len(f.Categories) > 0 && !containsCategory(f.Categories, m.Category) {
		return false
	}
	if !m.Metadata.HasTags(f.Tags) {
		return false
	}
	p := m.Priority()
	if f.MinPriority > 0 && p < f.MinPriority {
		return false
	}
	if f.MaxPriority > 0 && p > f.MaxPriority {
		return false
	}
	if f.CreatedAfter != nil && !m.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !m.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.UpdatedAfter != nil && !m.UpdatedAt.After(*f.UpdatedAfter) {
		return false
	}
	if f.UpdatedBefore != nil && !m.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	if f.Since != nil && !m.UpdatedAt.After(*f.Since) {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(m.Content), strings.ToLower(f.Query)) {
		return false
	}
	return true
}

func (f *Filter) scopes() []model.Scope {
	if len(f.Scopes) == 0 {
		return model.AllScopes
	}
	return f.Scopes
}

// categoriesFor lists the categories to fetch for scope s.
func (f *Filter) categoriesFor(s model.Scope) []model.Category {
	all := model.CategoriesFor(s)
	if len(f.Categories) == 0 {
		return all
	}
	var out []model.Category
	for _, c := range all {
		if containsCategory(f.Categories, c) {
			out = append(out, c)
		}
	}
	return out
}

func (f *Filter) validate(op string) error {
	for _, s := range f.Scopes {
		if !s.Valid() {
			return newError(op, KindValidation, map[string]any{"scope": s}, "unknown scope %q", s)
		}
	}
	for _, c := range f.Categories {
		if !c.Valid() {
			return newError(op, KindInvalidCategory, map[string]any{"category": c}, "unknown category %q", c)
		}
	}
	return nil
}

func containsCategory(cs []model.Category, c model.Category) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

// RecallOptions selects and bounds a recall.
type RecallOptions struct {
	Filter

	// Limit is clamped to [1, MaxRecallLimit]; nil means DefaultRecallLimit.
	Limit *int `json:"limit,omitempty"`
}

// RecallCounts summarizes a recall.
type RecallCounts struct {
	// Total is the number of live matches before the limit was applied.
	Total    int                 `json:"total"`
	Returned int                 `json:"returned"`
	Expired  int                 `json:"expired"`
	ByScope  map[model.Scope]int `json:"byScope"`
}

// RecallResult groups ranked memories by scope.
type RecallResult struct {
	Results map[model.Scope][]model.Memory `json:"results"`
	Counts  RecallCounts                   `json:"counts"`
	Summary string                         `json:"summary"`
}

// ClampLimit resolves a requested recall limit.
func ClampLimit(limit *int) int {
	if limit == nil {
		return DefaultRecallLimit
	}
	return max(1, min(*limit, MaxRecallLimit))
}

// Recall gathers the caller's memories across scopes, filters and ranks them
// by category, then by most recent update, and returns at most the limit.
func (e *Engine) Recall(ctx context.Context, c Caller, opts RecallOptions) (*RecallResult, error) {
	const op = "recall"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	if err := opts.Filter.validate(op); err != nil {
		return nil, err
	}
	candidates, err := e.collect(ctx, op, c, &opts.Filter)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	res := &RecallResult{
		Results: map[model.Scope][]model.Memory{},
		Counts:  RecallCounts{ByScope: map[model.Scope]int{}},
	}
	var live []model.Memory
	for i := range candidates {
		m := &candidates[i]
		if !opts.Filter.Match(m) {
			continue
		}
		if m.Expired(now) {
			res.Counts.Expired++
			continue
		}
		live = append(live, *m)
	}

	Rank(live)
	res.Counts.Total = len(live)
	if limit := ClampLimit(opts.Limit); len(live) > limit {
		live = live[:limit]
	}
	res.Counts.Returned = len(live)
	for _, m := range live {
		res.Results[m.Scope] = append(res.Results[m.Scope], m)
		res.Counts.ByScope[m.Scope]++
	}
	res.Summary = Summarize(live)
	return res, nil
}

// Rank sorts ms by category rank, then updatedAt descending, then id.
func Rank(ms []model.Memory) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := &ms[i], &ms[j]
		if ra, rb := a.Category.Rank(), b.Category.Rank(); ra != rb {
			return ra < rb
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// Summarize renders ranked memories as markdown grouped by category, bounded
// by MaxSummaryBytes.
func Summarize(ranked []model.Memory) string {
	if len(ranked) == 0 {
		return ""
	}
	var sb strings.Builder
	var current model.Category
	for i, m := range ranked {
		if i == 0 || m.Category != current {
			if i > 0 {
				sb.WriteString("\n")
			}
			current = m.Category
			sb.WriteString("## " + string(current) + "\n")
		}
		sb.WriteString("- " + strings.ReplaceAll(m.Content, "\n", " ") + "\n")
	}
	return truncateUTF8(strings.TrimRight(sb.String(), "\n"), MaxSummaryBytes)
}

// truncateUTF8 cuts s to at most limit bytes, marker included, without
// splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(summaryEllipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + summaryEllipsis
}

// collect fetches every memory in the filter's scopes and categories for the
// caller, one goroutine per scope.
func (e *Engine) collect(ctx context.Context, op string, c Caller, f *Filter) ([]model.Memory, error) {
	var (
		mu  sync.Mutex
		out []model.Memory
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range f.scopes() {
		cats := f.categoriesFor(s)
		if len(cats) == 0 {
			continue
		}
		g.Go(func() error {
			loc, err := e.ensure(gctx, op, c, s)
			if err != nil {
				return err
			}
			for _, cat := range cats {
				ms, err := e.router.ListByPrefix(gctx, loc, model.CategoryPrefix(c.AgentID, cat, s))
				if err != nil {
					return classify(op, err)
				}
				if s.Individual() {
					ms = ownedBy(ms, c.AgentID)
				}
				mu.Lock()
				out = append(out, ms...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ownedBy keeps the memories whose recorded owner is agentID. Individual
// listings are prefix scans, so this drops anything written under the prefix
// by another owner.
func ownedBy(ms []model.Memory, agentID string) []model.Memory {
	out := ms[:0]
	for _, m := range ms {
		if m.AgentID == agentID {
			out = append(out, m)
		}
	}
	return out
}
