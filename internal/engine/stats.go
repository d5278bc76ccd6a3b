package engine

import (
	"context"

	"github.com/rcliao/memhive/internal/model"
)

// ScopeStats holds counts for one scope.
type ScopeStats struct {
	Scope      model.Scope            `json:"scope"`
	Bucket     string                 `json:"bucket"`
	Total      int                    `json:"total"`
	Expired    int                    `json:"expired"`
	Categories map[model.Category]int `json:"categories"`
}

// Stats holds per-scope counts of the memories visible to a caller.
type Stats struct {
	AgentID   string              `json:"agentId"`
	ProjectID string              `json:"projectId"`
	Total     int                 `json:"total"`
	Expired   int                 `json:"expired"`
	// CoreUsed counts core memories per individual scope; the ceiling
	// CoreLimit applies to each scope separately.
	CoreUsed  map[model.Scope]int `json:"coreUsed"`
	CoreLimit int                 `json:"coreLimit"`
	Scopes    []ScopeStats        `json:"scopes"`
}

// Stats counts the caller's memories per scope and category. Expired records
// are counted separately and excluded from the category counts.
func (e *Engine) Stats(ctx context.Context, c Caller) (*Stats, error) {
	const op = "stats"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	all, err := e.collect(ctx, op, c, &Filter{})
	if err != nil {
		return nil, err
	}

	now := e.clock()
	st := &Stats{
		AgentID:   c.AgentID,
		ProjectID: c.ProjectID,
		CoreUsed:  map[model.Scope]int{model.ScopePrivate: 0, model.ScopePersonal: 0},
		CoreLimit: MaxCoreMemories,
	}
	byScope := map[model.Scope]*ScopeStats{}
	for _, s := range model.AllScopes {
		loc, err := model.LocationFor(s, c.ProjectID, c.AgentID)
		if err != nil {
			return nil, classify(op, err)
		}
		ss := ScopeStats{Scope: s, Bucket: loc.Bucket(), Categories: map[model.Category]int{}}
		st.Scopes = append(st.Scopes, ss)
	}
	for i := range st.Scopes {
		byScope[st.Scopes[i].Scope] = &st.Scopes[i]
	}

	for i := range all {
		m := &all[i]
		ss := byScope[m.Scope]
		if ss == nil {
			continue
		}
		if m.Expired(now) {
			ss.Expired++
			st.Expired++
			continue
		}
		ss.Total++
		ss.Categories[m.Category]++
		st.Total++
		if m.Category == model.CategoryCore {
			st.CoreUsed[m.Scope]++
		}
	}
	return st, nil
}
