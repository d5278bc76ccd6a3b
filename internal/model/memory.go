// Package model defines the core memory data types, their validation rules
// and the deterministic mapping from a memory to its storage key and location.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxContentBytes bounds content size in encoded UTF-8 bytes.
	MaxContentBytes = 32 * 1024
	MaxTags         = 10
	MaxTagLength    = 50
	DefaultPriority = 2
	MinPriority     = 1
	MaxPriority     = 3
)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid memory")

// Metadata holds optional descriptive fields of a memory.
type Metadata struct {
	Tags       []string `json:"tags,omitempty"`
	Priority   int      `json:"priority,omitempty"`
	RelatedIDs []string `json:"relatedIds,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// EffectivePriority returns the priority, treating an absent value as DefaultPriority.
func (m *Metadata) EffectivePriority() int {
	if m == nil || m.Priority == 0 {
		return DefaultPriority
	}
	return m.Priority
}

// HasTags reports whether every tag in want is present.
func (m *Metadata) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	if m == nil {
		return false
	}
	have := make(map[string]bool, len(m.Tags))
	for _, t := range m.Tags {
		have[t] = true
	}
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := &Metadata{Priority: m.Priority, Source: m.Source}
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.RelatedIDs != nil {
		c.RelatedIDs = append([]string(nil), m.RelatedIDs...)
	}
	return c
}

// Memory is the sole persisted entity.
type Memory struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agentId"`
	ProjectID string     `json:"projectId"`
	Scope     Scope      `json:"scope"`
	Category  Category   `json:"category"`
	Content   string     `json:"content"`
	Metadata  *Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Version   int        `json:"version"`
}

// Key returns the storage key of the memory.
func (m *Memory) Key() string {
	return Key(m.AgentID, m.Category, m.ID, m.Scope)
}

// Expired reports whether the memory carries an expiry at or before now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Priority returns the effective priority of the memory.
func (m *Memory) Priority() int {
	return m.Metadata.EffectivePriority()
}

// ApplyTTL sets or clears ExpiresAt from the category's TTL, counted from CreatedAt.
func (m *Memory) ApplyTTL() {
	ttl := m.Category.TTL()
	if ttl == 0 {
		m.ExpiresAt = nil
		return
	}
	exp := m.CreatedAt.Add(ttl)
	m.ExpiresAt = &exp
}

// Validate checks the structural integrity of a stored or imported memory.
func (m *Memory) Validate() error {
	var missing []string
	if m.ID == "" {
		missing = append(missing, "id")
	}
	if m.AgentID == "" {
		missing = append(missing, "agentId")
	}
	if m.ProjectID == "" && m.Scope != ScopePersonal && m.Scope != ScopePublic {
		missing = append(missing, "projectId")
	}
	if m.CreatedAt.IsZero() {
		missing = append(missing, "createdAt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalid, strings.Join(missing, ", "))
	}
	if err := ValidateOwnerID("agentId", m.AgentID); err != nil {
		return err
	}
	if m.ProjectID != "" {
		if err := ValidateOwnerID("projectId", m.ProjectID); err != nil {
			return err
		}
	}
	if err := ValidatePair(m.Scope, m.Category); err != nil {
		return err
	}
	if err := ValidateContent(m.Content); err != nil {
		return err
	}
	return ValidateMetadata(m.Metadata)
}

// ValidateContent enforces non-empty content within MaxContentBytes.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalid)
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: content is %d bytes (max %d)", ErrInvalid, len(content), MaxContentBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrInvalid)
	}
	return nil
}

// ValidateMetadata checks tag and priority bounds. A nil metadata is valid.
func ValidateMetadata(md *Metadata) error {
	if md == nil {
		return nil
	}
	if len(md.Tags) > MaxTags {
		return fmt.Errorf("%w: %d tags (max %d)", ErrInvalid, len(md.Tags), MaxTags)
	}
	for _, t := range md.Tags {
		if utf8.RuneCountInString(t) > MaxTagLength {
			return fmt.Errorf("%w: tag %q exceeds %d characters", ErrInvalid, t, MaxTagLength)
		}
	}
	if md.Priority != 0 && (md.Priority < MinPriority || md.Priority > MaxPriority) {
		return fmt.Errorf("%w: priority %d out of range [%d,%d]", ErrInvalid, md.Priority, MinPriority, MaxPriority)
	}
	return nil
}
