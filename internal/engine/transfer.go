package engine

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/memhive/internal/model"
	"github.com/rcliao/memhive/internal/router"
)

// ExportVersion is the envelope format version written by Export.
const ExportVersion = "1.0"

// Envelope is the portable export format.
type Envelope struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	ProjectID  string         `json:"projectId"`
	AgentID    string         `json:"agentId"`
	Memories   []model.Memory `json:"memories"`
}

// ExportOptions selects what to export and where to write it.
type ExportOptions struct {
	Scopes         []model.Scope    `json:"scopes,omitempty"`
	Categories     []model.Category `json:"categories,omitempty"`
	Since          *time.Time       `json:"since,omitempty"`
	IncludeExpired bool             `json:"includeExpired,omitempty"`

	// Path is the output file. When empty a timestamped file is created in Dir.
	Path string `json:"path,omitempty"`
	Dir  string `json:"dir,omitempty"`
}

// ExportResult reports a written export.
type ExportResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Snapshot builds an export envelope without writing it anywhere. Memories
// are unranked and untruncated, ordered by scope and then key.
func (e *Engine) Snapshot(ctx context.Context, c Caller, opts ExportOptions) (*Envelope, error) {
	const op = "export"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	f := Filter{Scopes: opts.Scopes, Categories: opts.Categories, Since: opts.Since}
	if err := f.validate(op); err != nil {
		return nil, err
	}
	candidates, err := e.collect(ctx, op, c, &f)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	env := &Envelope{
		Version:    ExportVersion,
		ExportedAt: now,
		ProjectID:  c.ProjectID,
		AgentID:    c.AgentID,
		Memories:   []model.Memory{},
	}
	for i := range candidates {
		m := &candidates[i]
		if !f.Match(m) || (!opts.IncludeExpired && m.Expired(now)) {
			continue
		}
		env.Memories = append(env.Memories, *m)
	}
	slices.SortFunc(env.Memories, func(a, b model.Memory) int {
		return cmp.Or(
			cmp.Compare(slices.Index(model.AllScopes, a.Scope), slices.Index(model.AllScopes, b.Scope)),
			strings.Compare(a.Key(), b.Key()),
		)
	})
	return env, nil
}

// Export writes a snapshot as indented JSON.
func (e *Engine) Export(ctx context.Context, c Caller, opts ExportOptions) (*ExportResult, error) {
	const op = "export"
	env, err := e.Snapshot(ctx, c, opts)
	if err != nil {
		return nil, err
	}
	path := opts.Path
	if path == "" {
		path = filepath.Join(opts.Dir, ExportFileName(c.AgentID, env.ExportedAt))
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, &Error{Kind: KindStore, Op: op, Message: "encode export", Err: err}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &Error{Kind: KindStore, Op: op, Message: fmt.Sprintf("create export directory: %v", err), Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, &Error{Kind: KindStore, Op: op, Message: fmt.Sprintf("write export: %v", err), Err: err}
	}
	e.logger.Info("export written", "path", path, "count", len(env.Memories))
	return &ExportResult{Path: path, Count: len(env.Memories)}, nil
}

// ExportFileName is the default export file name for agentID at t.
func ExportFileName(agentID string, t time.Time) string {
	return fmt.Sprintf("memhive-export-%s-%s.json", agentID, t.UTC().Format("20060102T150405Z"))
}

// ImportOptions controls how an export is applied.
type ImportOptions struct {
	// Path is read when Data is empty.
	Path string          `json:"path,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`

	OverwriteExisting bool `json:"overwriteExisting,omitempty"`

	// SkipInvalid reports invalid or conflicting records instead of aborting.
	// Nil means true.
	SkipInvalid *bool `json:"skipInvalid,omitempty"`
}

func (o ImportOptions) skipInvalid() bool {
	return o.SkipInvalid == nil || *o.SkipInvalid
}

// ImportResult reports what an import did.
type ImportResult struct {
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Conflicts []string `json:"conflicts"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
}

// rawEnvelope defers decoding of records so one bad record does not sink
// the whole file.
type rawEnvelope struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	ProjectID  string            `json:"projectId"`
	AgentID    string            `json:"agentId"`
	Memories   []json.RawMessage `json:"memories"`
}

// Import applies an export. Each record is written to the location of its own
// scope and keeps its id, owner and timestamps; expiry is recomputed from its
// category. With OverwriteExisting only records the caller owns are replaced;
// another agent's existing record is refused with Forbidden.
func (e *Engine) Import(ctx context.Context, c Caller, opts ImportOptions) (*ImportResult, error) {
	const op = "import"
	if err := c.validate(op); err != nil {
		return nil, err
	}
	data := []byte(opts.Data)
	if len(data) == 0 {
		if opts.Path == "" {
			return nil, newError(op, KindValidation, nil, "path or data is required")
		}
		b, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, newError(op, KindValidation, map[string]any{"path": opts.Path}, "read import file: %v", err)
		}
		data = b
	}

	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newError(op, KindValidation, nil, "parse import: %v", err)
	}
	res := &ImportResult{Conflicts: []string{}, Errors: []string{}, Warnings: []string{}}
	newer, err := newerVersion(env.Version, ExportVersion)
	if err != nil {
		return nil, newError(op, KindValidation, map[string]any{"version": env.Version}, "%v", err)
	}
	if newer {
		res.Warnings = append(res.Warnings, fmt.Sprintf("export version %s is newer than %s; unknown fields are ignored", env.Version, ExportVersion))
	}

	skip := opts.skipInvalid()
	for i, raw := range env.Memories {
		if err := ctx.Err(); err != nil {
			return nil, classify(op, err)
		}
		err := e.importOne(ctx, op, c, raw, opts.OverwriteExisting, res)
		if err == nil {
			continue
		}
		if !skip {
			return nil, err
		}
		res.Skipped++
		res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
	}
	e.logger.Info("import finished", "agent", c.AgentID, "imported", res.Imported,
		"skipped", res.Skipped, "conflicts", len(res.Conflicts))
	return res, nil
}

// errConflict marks a record whose key already exists.
type errConflict struct{ id string }

func (e errConflict) Error() string { return "memory " + e.id + " already exists" }

func (e *Engine) importOne(ctx context.Context, op string, c Caller, raw json.RawMessage, overwrite bool, res *ImportResult) error {
	var m model.Memory
	if err := json.Unmarshal(raw, &m); err != nil {
		return newError(op, KindValidation, nil, "decode record: %v", err)
	}
	if err := m.Validate(); err != nil {
		return classify(op, err)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Version < 1 {
		m.Version = 1
	}
	m.ApplyTTL()

	loc, err := e.router.EnsureLocation(ctx, m.Scope, m.ProjectID, m.AgentID)
	if err != nil {
		return classify(op, err)
	}
	if !overwrite {
		exists, err := e.router.Exists(ctx, loc, m.Key())
		if err != nil {
			return classify(op, err)
		}
		if exists {
			res.Conflicts = append(res.Conflicts, m.ID)
			conflict := errConflict{m.ID}
			return &Error{Kind: KindValidation, Op: op, Message: conflict.Error(), Details: map[string]any{"id": m.ID}, Err: conflict}
		}
	} else {
		existing, err := e.router.Read(ctx, loc, m.Key())
		switch {
		case errors.Is(err, router.ErrNotFound):
		case err != nil:
			return classify(op, err)
		case existing.AgentID != c.AgentID:
			return newError(op, KindForbidden, map[string]any{"id": m.ID, "owner": existing.AgentID},
				"memory %s belongs to agent %s and cannot be overwritten", m.ID, existing.AgentID)
		}
	}
	if err := e.router.Write(ctx, &m, m.Category.TTLSeconds()); err != nil {
		return classify(op, err)
	}
	res.Imported++
	return nil
}

// newerVersion reports whether version v is newer than ref. Both are
// "major.minor" strings.
func newerVersion(v, ref string) (bool, error) {
	if v == "" {
		return false, fmt.Errorf("export version is missing")
	}
	pv, err := parseVersion(v)
	if err != nil {
		return false, err
	}
	pr, err := parseVersion(ref)
	if err != nil {
		return false, err
	}
	if pv[0] != pr[0] {
		return pv[0] > pr[0], nil
	}
	return pv[1] > pr[1], nil
}

func parseVersion(v string) ([2]int, error) {
	var out [2]int
	major, minor, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return out, fmt.Errorf("malformed export version %q", v)
	}
	out[0] = n
	if minor != "" {
		// Extra components such as a patch number are ignored.
		minor, _, _ = strings.Cut(minor, ".")
		n, err = strconv.Atoi(minor)
		if err != nil {
			return out, fmt.Errorf("malformed export version %q", v)
		}
		out[1] = n
	}
	return out, nil
}
