package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"fieldline.dev/internal/audit"
	"fieldline.dev/internal/obs"
)

// Directory resolves principals and team membership. It is the engine's
// only collaborator besides the audit recorder; the customer/deal tables
// themselves are never consulted here.
type Directory interface {
	// FindPrincipal returns the principal for id, including disabled ones.
	// Implementations return ErrPrincipalNotFound for unknown ids.
	FindPrincipal(ctx context.Context, id string) (Principal, error)

	// TeamMemberIDs returns the ids of principals reporting to managerID,
	// excluding the manager itself.
	TeamMemberIDs(ctx context.Context, managerID string) ([]string, error)
}

// Decision is the outcome of an authorization check. Denial is a decision,
// not an error. For list operations Filter carries the visibility scope the
// caller's data layer must apply.
type Decision struct {
	Allowed bool
	Filter  *Scope
	Reason  string
}

// RestrictAuditFilter narrows an audit query filter to the actors visible
// under the decision's scope. Used when serving audit_log list requests, so
// audit visibility goes through the same table as every other resource.
func (d Decision) RestrictAuditFilter(f audit.Filter) audit.Filter {
	if !d.Allowed || d.Filter == nil || d.Filter.Unbounded() {
		return f
	}
	visible := d.Filter.OwnerIDs()
	if len(f.ActorIDs) == 0 {
		f.ActorIDs = visible
		return f
	}
	var kept []string
	for _, id := range f.ActorIDs {
		if slices.Contains(visible, id) {
			kept = append(kept, id)
		}
	}
	if kept == nil {
		// Force an empty result rather than widening to "any actor".
		kept = []string{}
	}
	f.ActorIDs = kept
	return f
}

// Engine is the authorization decision point. Stateless; safe for
// concurrent use.
type Engine struct {
	directory Directory
	recorder  *audit.Recorder
}

// NewEngine builds an Engine over the given collaborators.
func NewEngine(directory Directory, recorder *audit.Recorder) (*Engine, error) {
	if directory == nil {
		return nil, errors.New("authz: directory is required")
	}
	if recorder == nil {
		return nil, errors.New("authz: audit recorder is required")
	}
	return &Engine{directory: directory, recorder: recorder}, nil
}

// VisibilityScope computes the principal's visibility predicate for a
// resource type. Pure apart from the team-membership lookup.
func (e *Engine) VisibilityScope(ctx context.Context, p Principal, t ResourceType) (Scope, error) {
	if !t.Valid() {
		return Scope{}, fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, t)
	}
	switch p.Role {
	case RoleAdmin:
		return scopeAll(), nil
	case RoleManager:
		members, err := e.directory.TeamMemberIDs(ctx, p.ID)
		if err != nil {
			return Scope{}, fmt.Errorf("authz: resolve team for %s: %w", p.ID, err)
		}
		return scopeTeam(append([]string{p.ID}, members...)), nil
	case RoleSalesRep:
		return scopeOwn(p.ID), nil
	}
	return Scope{}, fmt.Errorf("%w: principal %q has no valid role", ErrInvalidInput, p.ID)
}

// Authorize decides whether p may perform op on res. Every call, allowed or
// denied, appends exactly one audit event; if the append fails in strict
// mode the error is returned and the operation must not proceed.
func (e *Engine) Authorize(ctx context.Context, p Principal, op Operation, res Resource) (Decision, error) {
	if p.ID == "" || !p.Role.Valid() {
		return Decision{}, fmt.Errorf("%w: principal %q with role %q", ErrInvalidInput, p.ID, p.Role)
	}
	if !op.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, op)
	}
	scope, err := e.VisibilityScope(ctx, p, res.Type)
	if err != nil {
		return Decision{}, err
	}

	decision, err := e.decide(ctx, p, op, res, scope)
	if err != nil {
		return Decision{}, err
	}

	obs.ObserveDecision(string(res.Type), string(op), decision.Allowed)
	if err := e.recordDecision(ctx, p, op, res, decision); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func (e *Engine) decide(ctx context.Context, p Principal, op Operation, res Resource, scope Scope) (Decision, error) {
	if p.Disabled {
		return deny("principal is disabled"), nil
	}

	// The audit log is append-only; no mutation reaches it through the
	// engine regardless of role.
	if res.Type == ResourceAuditLog && op.mutating() {
		return deny("audit log is append-only"), nil
	}

	switch op {
	case OpList:
		if scope.Kind == ScopeNone {
			return deny("no visibility for resource type"), nil
		}
		return Decision{Allowed: true, Filter: &scope}, nil

	case OpRead:
		if !scope.MatchesResource(res) {
			return deny("resource outside visibility scope"), nil
		}
		return allow(), nil

	case OpCreate, OpUpdate, OpDelete:
		return e.decideMutation(ctx, p, op, res, scope)

	case OpAssign:
		return e.decideAssign(ctx, p, res, scope)
	}
	return Decision{}, fmt.Errorf("%w: unhandled operation %q", ErrInvalidInput, op)
}

func (e *Engine) decideMutation(ctx context.Context, p Principal, op Operation, res Resource, scope Scope) (Decision, error) {
	// User management is an admin capability; managers' wider visibility
	// does not extend to mutating user records.
	if res.Type == ResourceUser && p.Role != RoleAdmin {
		return deny("user management requires admin"), nil
	}
	if op != OpCreate && !scope.MatchesResource(res) {
		return deny("resource outside visibility scope"), nil
	}

	// Setting assigned_to during create/update is a reassignment in
	// disguise and follows the assignment rules.
	if res.NewOwner != nil && *res.NewOwner != "" {
		target := *res.NewOwner
		switch p.Role {
		case RoleSalesRep:
			if target != p.ID {
				return deny("sales_rep may not assign to another principal"), nil
			}
		case RoleManager, RoleAdmin:
			if d, err := e.checkAssignee(ctx, p, scope, target); err != nil || !d.Allowed {
				return d, err
			}
		}
	}
	return allow(), nil
}

func (e *Engine) decideAssign(ctx context.Context, p Principal, res Resource, scope Scope) (Decision, error) {
	// Reassignment is never a sales_rep capability, ownership included.
	if p.Role != RoleManager && p.Role != RoleAdmin {
		return deny("assignment requires manager or admin"), nil
	}
	if !scope.MatchesResource(res) {
		return deny("resource outside visibility scope"), nil
	}
	if res.NewOwner == nil || *res.NewOwner == "" {
		return Decision{}, fmt.Errorf("%w: assign without a target assignee", ErrInvalidInput)
	}
	return e.checkAssignee(ctx, p, scope, *res.NewOwner)
}

// checkAssignee validates the target of an assignment: it must exist, be
// active, and for managers sit inside their own team.
func (e *Engine) checkAssignee(ctx context.Context, p Principal, scope Scope, target string) (Decision, error) {
	assignee, err := e.directory.FindPrincipal(ctx, target)
	if errors.Is(err, ErrPrincipalNotFound) {
		return deny("assignee does not exist"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("authz: resolve assignee %s: %w", target, err)
	}
	if assignee.Disabled {
		return deny("assignee is disabled"), nil
	}
	if p.Role == RoleManager && !scope.Matches(target, true) {
		return deny("assignee outside team"), nil
	}
	return allow(), nil
}

func (e *Engine) recordDecision(ctx context.Context, p Principal, op Operation, res Resource, d Decision) error {
	details := map[string]any{
		"outcome": outcome(d.Allowed),
	}
	if d.Reason != "" {
		details["reason"] = d.Reason
	}
	if res.NewOwner != nil && *res.NewOwner != "" {
		details["new_owner"] = *res.NewOwner
	}
	return e.recorder.Record(ctx, audit.Event{
		ActorID:      p.ID,
		Action:       string(op),
		ResourceType: string(res.Type),
		ResourceID:   res.ID,
		Details:      details,
	})
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

func outcome(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
