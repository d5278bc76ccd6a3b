package engine

import (
	"context"
	"time"

	"github.com/rcliao/memhive/internal/model"
	"github.com/rcliao/memhive/internal/scan"
)

// MaxCoreMemories is the hard ceiling of core memories per agent and location.
const MaxCoreMemories = 100

// RememberInput describes a new memory.
type RememberInput struct {
	Content  string          `json:"content"`
	Scope    model.Scope     `json:"scope,omitempty"`
	Category model.Category  `json:"category,omitempty"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
}

// WriteResult describes a stored memory.
type WriteResult struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Scope     model.Scope    `json:"scope"`
	Category  model.Category `json:"category"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Warnings  []scan.Warning `json:"warnings,omitempty"`
}

func resultFor(m *model.Memory, warnings []scan.Warning) *WriteResult {
	return &WriteResult{
		ID:        m.ID,
		Key:       m.Key(),
		Scope:     m.Scope,
		Category:  m.Category,
		ExpiresAt: m.ExpiresAt,
		Warnings:  warnings,
	}
}

// Remember stores a new memory. Scope defaults to private and category to
// recent. Input is fully validated before the store is touched.
func (e *Engine) Remember(ctx context.Context, c Caller, in RememberInput) (*WriteResult, error) {
	return e.remember(ctx, "remember", c, in)
}

// RememberTask stores a private task memory that expires after 24 hours.
func (e *Engine) RememberTask(ctx context.Context, c Caller, content string, md *model.Metadata) (*WriteResult, error) {
	return e.remember(ctx, "remember_task", c, RememberInput{
		Content: content, Scope: model.ScopePrivate, Category: model.CategoryTasks, Metadata: md,
	})
}

// RememberLearning stores a private recent memory, the usual first step
// before CommitInsight.
func (e *Engine) RememberLearning(ctx context.Context, c Caller, content string, md *model.Metadata) (*WriteResult, error) {
	return e.remember(ctx, "remember_learning", c, RememberInput{
		Content: content, Scope: model.ScopePrivate, Category: model.CategoryRecent, Metadata: md,
	})
}

func (e *Engine) remember(ctx context.Context, op string, c Caller, in RememberInput) (*WriteResult, error) {
	m, err := e.build(op, c, in)
	if err != nil {
		return nil, err
	}
	warnings := e.scanContent(op, m.Content)
	if err := e.write(ctx, op, m); err != nil {
		return nil, err
	}
	e.logger.Debug("memory stored", "op", op, "id", m.ID, "scope", m.Scope, "category", m.Category)
	return resultFor(m, warnings), nil
}

// build validates in and materializes a new memory. It never touches the store.
func (e *Engine) build(op string, c Caller, in RememberInput) (*model.Memory, error) {
	if err := c.validate(op); err != nil {
		return nil, err
	}
	scope := in.Scope
	if scope == "" {
		scope = model.ScopePrivate
	}
	cat := in.Category
	if cat == "" {
		cat = model.CategoryRecent
	}
	if err := model.ValidatePair(scope, cat); err != nil {
		return nil, classify(op, err)
	}
	if err := model.ValidateContent(in.Content); err != nil {
		return nil, classify(op, err)
	}
	if err := model.ValidateMetadata(in.Metadata); err != nil {
		return nil, classify(op, err)
	}

	now := e.clock()
	m := &model.Memory{
		ID:        e.newID(now),
		AgentID:   c.AgentID,
		ProjectID: c.ProjectID,
		Scope:     scope,
		Category:  cat,
		Content:   in.Content,
		Metadata:  in.Metadata.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	m.ApplyTTL()
	return m, nil
}

// CoreMemoryInput describes an identity memory.
type CoreMemoryInput struct {
	Content  string          `json:"content"`
	Scope    model.Scope     `json:"scope,omitempty"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
}

// CoreMemory stores a protected identity memory in private (default) or
// personal scope. It refuses with StorageFull once the agent already holds
// MaxCoreMemories core memories in that location.
func (e *Engine) CoreMemory(ctx context.Context, c Caller, in CoreMemoryInput) (*WriteResult, error) {
	const op = "core_memory"
	m, err := e.build(op, c, RememberInput{
		Content: in.Content, Scope: in.Scope, Category: model.CategoryCore, Metadata: in.Metadata,
	})
	if err != nil {
		return nil, err
	}

	loc, err := e.ensure(ctx, op, c, m.Scope)
	if err != nil {
		return nil, err
	}
	held, err := e.router.ListByPrefix(ctx, loc, model.CategoryPrefix(c.AgentID, model.CategoryCore, m.Scope))
	if err != nil {
		return nil, classify(op, err)
	}
	n := len(ownedBy(held, c.AgentID))
	if n >= MaxCoreMemories {
		return nil, newError(op, KindStorageFull, map[string]any{"count": n, "limit": MaxCoreMemories},
			"core memory limit reached (%d/%d); forget a core memory with force before adding another", n, MaxCoreMemories)
	}

	warnings := e.scanContent(op, m.Content)
	if err := e.write(ctx, op, m); err != nil {
		return nil, err
	}
	return resultFor(m, warnings), nil
}

// CommitInsightInput selects a temporary memory to promote.
type CommitInsightInput struct {
	ID          string      `json:"id"`
	Content     string      `json:"content,omitempty"`
	TargetScope model.Scope `json:"targetScope,omitempty"`
}

// TransitionResult describes a memory that moved to a new key.
type TransitionResult struct {
	WriteResult
	OriginalID      string `json:"originalId"`
	OriginalKey     string `json:"originalKey"`
	OriginalDeleted bool   `json:"originalDeleted"`
}

var individualScopes = []model.Scope{model.ScopePrivate, model.ScopePersonal}

// CommitInsight promotes a recent or tasks memory to longterm, optionally
// replacing its content and moving it between private and personal scope.
// The promoted record is written before the original is deleted; a failed
// delete leaves the promotion in place and reports OriginalDeleted=false.
func (e *Engine) CommitInsight(ctx context.Context, c Caller, in CommitInsightInput) (*TransitionResult, error) {
	const op = "commit_insight"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, newError(op, KindValidation, nil, "id is required")
	}
	if in.TargetScope != "" && !in.TargetScope.Individual() {
		return nil, newError(op, KindValidation, map[string]any{"targetScope": in.TargetScope},
			"targetScope must be private or personal")
	}
	if in.Content != "" {
		if err := model.ValidateContent(in.Content); err != nil {
			return nil, classify(op, err)
		}
	}

	f, err := e.locate(ctx, op, c, in.ID, individualScopes)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, newError(op, KindNotFound, map[string]any{"id": in.ID}, "no private or personal memory with id %s", in.ID)
	}
	src := f.mem
	switch src.Category {
	case model.CategoryCore:
		return nil, newError(op, KindCoreProtected, map[string]any{"id": in.ID}, "core memories cannot be promoted")
	case model.CategoryLongterm:
		return nil, newError(op, KindValidation, map[string]any{"id": in.ID}, "memory %s is already longterm", in.ID)
	}

	promoted := *src
	promoted.Metadata = src.Metadata.Clone()
	promoted.Category = model.CategoryLongterm
	promoted.ExpiresAt = nil
	promoted.UpdatedAt = e.clock()
	promoted.Version = src.Version + 1
	if in.TargetScope != "" {
		promoted.Scope = in.TargetScope
	}
	if in.Content != "" {
		promoted.Content = in.Content
	}
	warnings := e.scanContent(op, promoted.Content)

	if err := e.write(ctx, op, &promoted); err != nil {
		return nil, err
	}
	deleted := e.bestEffortDelete(ctx, op, f.loc, src.Key())

	e.logger.Debug("memory promoted", "id", promoted.ID, "from", src.Key(), "to", promoted.Key(), "originalDeleted", deleted)
	return &TransitionResult{
		WriteResult:     *resultFor(&promoted, warnings),
		OriginalID:      src.ID,
		OriginalKey:     src.Key(),
		OriginalDeleted: deleted,
	}, nil
}

// ShareLearningInput selects a durable individual memory to publish to the team.
type ShareLearningInput struct {
	ID             string         `json:"id"`
	TargetCategory model.Category `json:"targetCategory,omitempty"`
	KeepOriginal   bool           `json:"keepOriginal,omitempty"`
}

// ShareLearning copies a longterm or core memory into team scope under a new
// id. Unless KeepOriginal is set, the source is deleted afterwards on a best
// effort basis. Core sources are never deleted by sharing.
func (e *Engine) ShareLearning(ctx context.Context, c Caller, in ShareLearningInput) (*TransitionResult, error) {
	const op = "share_learning"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, newError(op, KindValidation, nil, "id is required")
	}
	target := in.TargetCategory
	if target == "" {
		target = model.CategoryLearnings
	}
	if !target.Collective() {
		return nil, newError(op, KindInvalidCategory, map[string]any{"targetCategory": target},
			"target category %q must be one of decisions, architecture, learnings", target)
	}

	f, err := e.locate(ctx, op, c, in.ID, individualScopes)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, newError(op, KindNotFound, map[string]any{"id": in.ID}, "no private or personal memory with id %s", in.ID)
	}
	src := f.mem
	if src.Category != model.CategoryLongterm && src.Category != model.CategoryCore {
		return nil, newError(op, KindInvalidCategory, map[string]any{"id": in.ID, "category": src.Category},
			"only longterm or core memories can be shared (got %s); commit the insight first", src.Category)
	}

	now := e.clock()
	md := src.Metadata.Clone()
	if md == nil {
		md = &model.Metadata{}
	}
	md.RelatedIDs = append(md.RelatedIDs, src.ID)
	if md.Source == "" {
		md.Source = "shared:" + src.ID
	}
	shared := &model.Memory{
		ID:        e.newID(now),
		AgentID:   src.AgentID,
		ProjectID: c.ProjectID,
		Scope:     model.ScopeTeam,
		Category:  target,
		Content:   src.Content,
		Metadata:  md,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := e.write(ctx, op, shared); err != nil {
		return nil, err
	}

	deleted := false
	if !in.KeepOriginal && src.Category != model.CategoryCore {
		deleted = e.bestEffortDelete(ctx, op, f.loc, src.Key())
	}
	return &TransitionResult{
		WriteResult:     *resultFor(shared, nil),
		OriginalID:      src.ID,
		OriginalKey:     src.Key(),
		OriginalDeleted: deleted,
	}, nil
}

// ForgetInput selects a memory to delete.
type ForgetInput struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

// ForgetResult reports a deletion. Deleted is false when the record vanished
// between lookup and delete.
type ForgetResult struct {
	ID       string         `json:"id"`
	Key      string         `json:"key"`
	Scope    model.Scope    `json:"scope"`
	Category model.Category `json:"category"`
	Deleted  bool           `json:"deleted"`
}

// Forget deletes a memory by id, searching the caller's individual memories
// and the team and public collections. Core memories need Force; collective
// memories may only be deleted by the agent that created them.
func (e *Engine) Forget(ctx context.Context, c Caller, in ForgetInput) (*ForgetResult, error) {
	const op = "forget"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, newError(op, KindValidation, nil, "id is required")
	}
	f, err := e.locate(ctx, op, c, in.ID, model.AllScopes)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, newError(op, KindNotFound, map[string]any{"id": in.ID}, "no memory with id %s", in.ID)
	}
	m := f.mem
	if m.Category == model.CategoryCore && !in.Force {
		return nil, newError(op, KindCoreProtected, map[string]any{"id": in.ID},
			"memory %s is a core memory; pass force to delete it", in.ID)
	}
	if !m.Scope.Individual() && m.AgentID != c.AgentID {
		return nil, newError(op, KindForbidden, map[string]any{"id": in.ID, "owner": m.AgentID},
			"memory %s belongs to agent %s", in.ID, m.AgentID)
	}

	existed, err := e.router.Delete(ctx, f.loc, m.Key())
	if err != nil {
		return nil, classify(op, err)
	}
	e.logger.Debug("memory forgotten", "id", m.ID, "key", m.Key(), "deleted", existed)
	return &ForgetResult{ID: m.ID, Key: m.Key(), Scope: m.Scope, Category: m.Category, Deleted: existed}, nil
}

// Get returns the memory with id visible to the caller.
func (e *Engine) Get(ctx context.Context, c Caller, id string) (*model.Memory, error) {
	const op = "get"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	f, err := e.locate(ctx, op, c, id, model.AllScopes)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, newError(op, KindNotFound, map[string]any{"id": id}, "no memory with id %s", id)
	}
	return f.mem, nil
}
