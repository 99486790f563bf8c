package authz

import "slices"

// ScopeKind classifies how wide a visibility predicate is.
type ScopeKind string

const (
	ScopeNone ScopeKind = "none"
	ScopeOwn  ScopeKind = "own"
	ScopeTeam ScopeKind = "team"
	ScopeAll  ScopeKind = "all"
)

// Scope is the visibility predicate for one principal over one resource
// type. It is a pure value: Matches needs no storage backend, and OwnerIDs
// lets the caller's data layer translate it into a query filter.
//
// IncludeUnowned controls whether records with no assigned_to reference
// fall inside the scope; it is never set for own-scoped principals.
type Scope struct {
	Kind           ScopeKind
	IDs            []string
	IncludeUnowned bool
}

func scopeNone() Scope {
	return Scope{Kind: ScopeNone}
}

func scopeOwn(id string) Scope {
	return Scope{Kind: ScopeOwn, IDs: []string{id}}
}

func scopeTeam(ids []string) Scope {
	return Scope{Kind: ScopeTeam, IDs: ids, IncludeUnowned: true}
}

func scopeAll() Scope {
	return Scope{Kind: ScopeAll, IncludeUnowned: true}
}

// Matches reports whether a record owned by ownerID (owned=false for an
// unassigned record) is visible under the scope.
func (s Scope) Matches(ownerID string, owned bool) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeNone:
		return false
	}
	if !owned {
		return s.IncludeUnowned
	}
	return slices.Contains(s.IDs, ownerID)
}

// MatchesResource applies the scope to a resource descriptor.
func (s Scope) MatchesResource(r Resource) bool {
	if r.owned() {
		return s.Matches(*r.Owner, true)
	}
	return s.Matches("", false)
}

// OwnerIDs returns the owner-id set a data layer should filter by, or nil
// when the scope is unbounded.
func (s Scope) OwnerIDs() []string {
	if s.Kind == ScopeAll {
		return nil
	}
	return slices.Clone(s.IDs)
}

// Unbounded reports whether the scope covers every record.
func (s Scope) Unbounded() bool {
	return s.Kind == ScopeAll
}
