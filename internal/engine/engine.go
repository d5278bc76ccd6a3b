// Package engine implements the memory operations on top of the storage
// router: lifecycle writes and scope transitions, cleanup, recall and
// export/import.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/memhive/internal/model"
	"github.com/rcliao/memhive/internal/router"
	"github.com/rcliao/memhive/internal/scan"
)

// Scanner inspects content before it is written. *scan.Scanner satisfies it.
type Scanner interface {
	Scan(text string) scan.Result
}

// Caller identifies the agent and project an operation runs for.
type Caller struct {
	AgentID   string `json:"agentId"`
	ProjectID string `json:"projectId"`
}

func (c Caller) validate(op string) error {
	if err := model.ValidateOwnerID("agentId", c.AgentID); err != nil {
		return classify(op, err)
	}
	if err := model.ValidateOwnerID("projectId", c.ProjectID); err != nil {
		return classify(op, err)
	}
	return nil
}

// Options configures an Engine.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Scanner is consulted on every content write. Nil disables scanning.
	Scanner Scanner

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Engine runs memory operations. It holds no state besides the router's
// provisioning memo and is safe for concurrent use.
type Engine struct {
	router  *router.Router
	scanner Scanner
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an engine over r.
func New(r *router.Router, opts Options) *Engine {
	e := &Engine{
		router:  r,
		scanner: opts.Scanner,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func (e *Engine) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// scanContent runs the injected scanner and logs any findings. Findings never
// block the write.
func (e *Engine) scanContent(op, content string) []scan.Warning {
	if e.scanner == nil {
		return nil
	}
	res := e.scanner.Scan(content)
	if !res.HasWarnings {
		return nil
	}
	types := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		types = append(types, w.Type)
	}
	e.logger.Warn("sensitive content detected", "op", op, "types", types)
	return res.Warnings
}

// ensure provisions the location of scope for the caller.
func (e *Engine) ensure(ctx context.Context, op string, c Caller, s model.Scope) (model.Location, error) {
	loc, err := e.router.EnsureLocation(ctx, s, c.ProjectID, c.AgentID)
	if err != nil {
		return model.Location{}, classify(op, err)
	}
	return loc, nil
}

// found is a memory located by id together with the location it lives in.
type found struct {
	mem *model.Memory
	loc model.Location
}

// locate looks up id by direct key reads across the given scopes and each
// scope's allowed categories. It returns nil when the id is not present.
func (e *Engine) locate(ctx context.Context, op string, c Caller, id string, scopes []model.Scope) (*found, error) {
	for _, s := range scopes {
		loc, err := e.ensure(ctx, op, c, s)
		if err != nil {
			return nil, err
		}
		for _, cat := range model.CategoriesFor(s) {
			m, err := e.router.Read(ctx, loc, model.Key(c.AgentID, cat, id, s))
			if errors.Is(err, router.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, classify(op, err)
			}
			return &found{mem: m, loc: loc}, nil
		}
	}
	return nil, nil
}

// write provisions the memory's location and stores it.
func (e *Engine) write(ctx context.Context, op string, m *model.Memory) error {
	if _, err := e.router.EnsureLocation(ctx, m.Scope, m.ProjectID, m.AgentID); err != nil {
		return classify(op, err)
	}
	if err := e.router.Write(ctx, m, m.Category.TTLSeconds()); err != nil {
		return classify(op, err)
	}
	return nil
}

// bestEffortDelete removes key and reports whether it did. Failures are
// logged, never returned.
func (e *Engine) bestEffortDelete(ctx context.Context, op string, loc model.Location, key string) bool {
	existed, err := e.router.Delete(ctx, loc, key)
	if err != nil {
		e.logger.Warn("best-effort delete failed", "op", op, "bucket", loc.Bucket(), "key", key, "error", err)
		return false
	}
	return existed
}
