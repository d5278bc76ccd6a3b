package model

import (
	"fmt"
	"time"
)

// Scope is the visibility tier of a memory.
type Scope string

const (
	ScopePrivate  Scope = "private"  // agent + project
	ScopePersonal Scope = "personal" // agent, all projects
	ScopeTeam     Scope = "team"     // project, all agents
	ScopePublic   Scope = "public"   // global
)

// AllScopes lists every scope in recall order.
var AllScopes = []Scope{ScopePrivate, ScopePersonal, ScopeTeam, ScopePublic}

func (s Scope) Valid() bool {
	switch s {
	case ScopePrivate, ScopePersonal, ScopeTeam, ScopePublic:
		return true
	}
	return false
}

// Individual reports whether the scope is owned by a single agent.
func (s Scope) Individual() bool {
	return s == ScopePrivate || s == ScopePersonal
}

// ParseScope validates s, returning def when s is empty.
func ParseScope(s string, def Scope) (Scope, error) {
	if s == "" {
		return def, nil
	}
	sc := Scope(s)
	if !sc.Valid() {
		return "", fmt.Errorf("%w: unknown scope %q (valid: private, personal, team, public)", ErrInvalid, s)
	}
	return sc, nil
}

// Category is the functional class of a memory.
type Category string

const (
	CategoryRecent   Category = "recent"
	CategoryTasks    Category = "tasks"
	CategoryLongterm Category = "longterm"
	CategoryCore     Category = "core"

	CategoryDecisions    Category = "decisions"
	CategoryArchitecture Category = "architecture"
	CategoryLearnings    Category = "learnings"
)

var (
	IndividualCategories = []Category{CategoryRecent, CategoryTasks, CategoryLongterm, CategoryCore}
	CollectiveCategories = []Category{CategoryDecisions, CategoryArchitecture, CategoryLearnings}
)

// TemporaryTTL is the lifetime of recent and tasks memories.
const TemporaryTTL = 24 * time.Hour

// categoryRank orders categories for recall: lower ranks sort first.
var categoryRank = map[Category]int{
	CategoryCore:         0,
	CategoryLongterm:     1,
	CategoryDecisions:    2,
	CategoryArchitecture: 3,
	CategoryLearnings:    4,
	CategoryTasks:        5,
	CategoryRecent:       6,
}

// RankedCategories lists every category in recall rank order.
var RankedCategories = []Category{
	CategoryCore, CategoryLongterm,
	CategoryDecisions, CategoryArchitecture, CategoryLearnings,
	CategoryTasks, CategoryRecent,
}

// Rank returns the recall rank of c. Unknown categories sort last.
func (c Category) Rank() int {
	if r, ok := categoryRank[c]; ok {
		return r
	}
	return len(categoryRank)
}

func (c Category) Valid() bool {
	_, ok := categoryRank[c]
	return ok
}

func (c Category) Individual() bool {
	switch c {
	case CategoryRecent, CategoryTasks, CategoryLongterm, CategoryCore:
		return true
	}
	return false
}

func (c Category) Collective() bool {
	switch c {
	case CategoryDecisions, CategoryArchitecture, CategoryLearnings:
		return true
	}
	return false
}

// TTL returns the lifetime of memories in c, or zero when they never expire.
func (c Category) TTL() time.Duration {
	if c == CategoryRecent || c == CategoryTasks {
		return TemporaryTTL
	}
	return 0
}

// TTLSeconds is TTL expressed in whole seconds.
func (c Category) TTLSeconds() int {
	return int(c.TTL() / time.Second)
}

// ParseCategory validates s, returning def when s is empty.
func ParseCategory(s string, def Category) (Category, error) {
	if s == "" {
		return def, nil
	}
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalid, s)
	}
	return c, nil
}

// CategoriesFor returns the categories that may be stored under scope s.
func CategoriesFor(s Scope) []Category {
	if s.Individual() {
		return IndividualCategories
	}
	return CollectiveCategories
}

// ValidatePair rejects scope/category combinations outside the allowed table.
func ValidatePair(s Scope, c Category) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalid, s)
	}
	if !c.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, c)
	}
	if s.Individual() && !c.Individual() {
		return fmt.Errorf("%w: category %q is not allowed in %s scope (use one of recent, tasks, longterm, core)", ErrInvalid, c, s)
	}
	if !s.Individual() && !c.Collective() {
		return fmt.Errorf("%w: category %q is not allowed in %s scope (use one of decisions, architecture, learnings)", ErrInvalid, c, s)
	}
	return nil
}
