package model

import (
	"fmt"
	"regexp"
)

// Key builds the storage key for a memory. Individual scopes are namespaced by
// agent; collective scopes use a flat category/id layout.
func Key(agentID string, c Category, id string, s Scope) string {
	return CategoryPrefix(agentID, c, s) + id
}

// CategoryPrefix is the key prefix shared by every memory of one category
// in one scope, ending in a slash.
func CategoryPrefix(agentID string, c Category, s Scope) string {
	if s.Individual() {
		return AgentPrefix(agentID) + string(c) + "/"
	}
	return string(c) + "/"
}

// AgentPrefix is the key prefix of all individual memories of one agent.
func AgentPrefix(agentID string) string {
	return "agents/" + agentID + "/"
}

// LocationKind identifies one of the three container families.
type LocationKind int

const (
	LocationProject LocationKind = iota
	LocationAgent
	LocationGlobal
)

func (k LocationKind) String() string {
	switch k {
	case LocationProject:
		return "project"
	case LocationAgent:
		return "agent"
	case LocationGlobal:
		return "global"
	}
	return "unknown"
}

// BucketPrefix prefixes every bucket the store provisions.
const BucketPrefix = "memhive"

// Location is a logical storage container.
type Location struct {
	Kind LocationKind
	// Owner is the project or agent id; empty for the global location.
	Owner string
}

var (
	unsafeBucketChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	validOwnerID      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

// ValidateOwnerID checks an agent or project id. Ids are embedded in key
// prefixes and bucket names, so they are restricted to letters, digits, '_'
// and '-'; anything else could alias another owner's prefix or bucket.
func ValidateOwnerID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	if !validOwnerID.MatchString(id) {
		return fmt.Errorf("%w: %s %q must be 1-128 letters, digits, '_' or '-'", ErrInvalid, field, id)
	}
	return nil
}

// Bucket returns the backend bucket name of the location.
func (l Location) Bucket() string {
	if l.Kind == LocationGlobal {
		return BucketPrefix + "-global"
	}
	return fmt.Sprintf("%s-%s-%s", BucketPrefix, l.Kind, unsafeBucketChars.ReplaceAllString(l.Owner, "_"))
}

func (l Location) String() string {
	return l.Bucket()
}

// LocationFor resolves the container a scope is stored in: private and team
// share the project container, personal lives in the agent container and
// public in the single global one.
func LocationFor(s Scope, projectID, agentID string) (Location, error) {
	switch s {
	case ScopePrivate, ScopeTeam:
		if err := ValidateOwnerID("projectId", projectID); err != nil {
			return Location{}, fmt.Errorf("%s scope: %w", s, err)
		}
		return Location{Kind: LocationProject, Owner: projectID}, nil
	case ScopePersonal:
		if err := ValidateOwnerID("agentId", agentID); err != nil {
			return Location{}, fmt.Errorf("%s scope: %w", s, err)
		}
		return Location{Kind: LocationAgent, Owner: agentID}, nil
	case ScopePublic:
		return Location{Kind: LocationGlobal}, nil
	}
	return Location{}, fmt.Errorf("%w: unknown scope %q", ErrInvalid, s)
}
