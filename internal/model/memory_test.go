package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidatePairTable(t *testing.T) {
	allCategories := append(append([]Category{}, IndividualCategories...), CollectiveCategories...)
	for _, s := range AllScopes {
		for _, c := range allCategories {
			err := ValidatePair(s, c)
			want := s.Individual() == c.Individual()
			if want && err != nil {
				t.Errorf("%s/%s: unexpected error %v", s, c, err)
			}
			if !want && !errors.Is(err, ErrInvalid) {
				t.Errorf("%s/%s: expected ErrInvalid, got %v", s, c, err)
			}
		}
	}
	if err := ValidatePair("galaxy", CategoryRecent); err == nil {
		t.Error("expected error for unknown scope")
	}
	if err := ValidatePair(ScopePrivate, "misc"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestKey(t *testing.T) {
	cases := []struct {
		scope Scope
		cat   Category
		want  string
	}{
		{ScopePrivate, CategoryRecent, "agents/a1/recent/x"},
		{ScopePersonal, CategoryCore, "agents/a1/core/x"},
		{ScopeTeam, CategoryDecisions, "decisions/x"},
		{ScopePublic, CategoryLearnings, "learnings/x"},
	}
	for _, c := range cases {
		if got := Key("a1", c.cat, "x", c.scope); got != c.want {
			t.Errorf("Key(%s,%s) = %q, want %q", c.scope, c.cat, got, c.want)
		}
	}
}

func TestLocationFor(t *testing.T) {
	priv, _ := LocationFor(ScopePrivate, "proj", "agent")
	team, _ := LocationFor(ScopeTeam, "proj", "agent")
	if priv != team {
		t.Errorf("private and team should share a location: %v vs %v", priv, team)
	}
	if priv.Bucket() != "memhive-project-proj" {
		t.Errorf("unexpected bucket %q", priv.Bucket())
	}
	pers, _ := LocationFor(ScopePersonal, "proj", "agent")
	if pers.Bucket() != "memhive-agent-agent" {
		t.Errorf("unexpected bucket %q", pers.Bucket())
	}
	pub, _ := LocationFor(ScopePublic, "", "")
	if pub.Bucket() != "memhive-global" {
		t.Errorf("unexpected bucket %q", pub.Bucket())
	}
	odd := Location{Kind: LocationAgent, Owner: "a.b/c"}
	if odd.Bucket() != "memhive-agent-a_b_c" {
		t.Errorf("bucket not sanitized: %q", odd.Bucket())
	}
	if _, err := LocationFor(ScopePersonal, "", "a.b/c"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unsafe agentId, got %v", err)
	}
	if _, err := LocationFor(ScopeTeam, "p/1", "agent"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unsafe projectId, got %v", err)
	}
	if _, err := LocationFor(ScopePrivate, "", "agent"); err == nil {
		t.Error("expected error without projectId")
	}
}

func TestValidateOwnerID(t *testing.T) {
	for _, id := range []string{"a1", "agent-7", "team_bot", strings.Repeat("x", 128)} {
		if err := ValidateOwnerID("agentId", id); err != nil {
			t.Errorf("%q: unexpected error %v", id, err)
		}
	}
	// Each of these would share a key prefix or bucket with another id.
	for _, id := range []string{"", "a1/recent", "a1/", "a.b", "a b", "ä", strings.Repeat("x", 129)} {
		if err := ValidateOwnerID("agentId", id); !errors.Is(err, ErrInvalid) {
			t.Errorf("%q: expected ErrInvalid, got %v", id, err)
		}
	}
}

func TestMemoryValidateRejectsUnsafeOwner(t *testing.T) {
	now := time.Now().UTC()
	m := Memory{
		ID: "x", AgentID: "a1/recent", ProjectID: "p1",
		Scope: ScopePrivate, Category: CategoryRecent, Content: "c", CreatedAt: now,
	}
	if err := m.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for slashed agentId, got %v", err)
	}
	m.AgentID, m.ProjectID = "a1", "p.1"
	if err := m.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unsafe projectId, got %v", err)
	}
	m.ProjectID = "p1"
	if err := m.Validate(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCategoryTTL(t *testing.T) {
	for _, c := range []Category{CategoryRecent, CategoryTasks} {
		if c.TTLSeconds() != 86400 {
			t.Errorf("%s: expected 86400s, got %d", c, c.TTLSeconds())
		}
	}
	for _, c := range []Category{CategoryLongterm, CategoryCore, CategoryDecisions, CategoryArchitecture, CategoryLearnings} {
		if c.TTL() != 0 {
			t.Errorf("%s: expected no TTL", c)
		}
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := Memory{Category: CategoryTasks, CreatedAt: now}
	m.ApplyTTL()
	if m.ExpiresAt == nil || !m.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Errorf("unexpected expiresAt %v", m.ExpiresAt)
	}
	m.Category = CategoryLongterm
	m.ApplyTTL()
	if m.ExpiresAt != nil {
		t.Error("expected expiresAt to be cleared")
	}
}

func TestRankOrder(t *testing.T) {
	for i := 1; i < len(RankedCategories); i++ {
		if RankedCategories[i-1].Rank() >= RankedCategories[i].Rank() {
			t.Errorf("rank table out of order at %s", RankedCategories[i])
		}
	}
	if CategoryCore.Rank() >= CategoryLongterm.Rank() || CategoryLongterm.Rank() >= CategoryRecent.Rank() {
		t.Error("core must outrank longterm, longterm must outrank recent")
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("   "); err == nil {
		t.Error("expected error for blank content")
	}
	// 3-byte rune, so the character count is well under the byte limit.
	big := strings.Repeat("€", MaxContentBytes/3+1)
	if err := ValidateContent(big); err == nil {
		t.Error("expected byte-size limit to apply")
	}
	if err := ValidateContent(strings.Repeat("a", MaxContentBytes)); err != nil {
		t.Errorf("content at the limit should pass: %v", err)
	}
}

func TestValidateMetadata(t *testing.T) {
	tooMany := &Metadata{Tags: make([]string, MaxTags+1)}
	if err := ValidateMetadata(tooMany); err == nil {
		t.Error("expected too many tags error")
	}
	long := &Metadata{Tags: []string{strings.Repeat("t", MaxTagLength+1)}}
	if err := ValidateMetadata(long); err == nil {
		t.Error("expected tag length error")
	}
	if err := ValidateMetadata(&Metadata{Priority: 4}); err == nil {
		t.Error("expected priority error")
	}
	if err := ValidateMetadata(nil); err != nil {
		t.Errorf("nil metadata should be valid: %v", err)
	}
	var md *Metadata
	if md.EffectivePriority() != DefaultPriority {
		t.Error("absent priority should default to 2")
	}
}

func TestHasTags(t *testing.T) {
	md := &Metadata{Tags: []string{"go", "infra", "deploy"}}
	if !md.HasTags([]string{"go", "deploy"}) {
		t.Error("expected all tags to match")
	}
	if md.HasTags([]string{"go", "rust"}) {
		t.Error("expected missing tag to fail")
	}
	var none *Metadata
	if none.HasTags([]string{"go"}) {
		t.Error("nil metadata has no tags")
	}
}
