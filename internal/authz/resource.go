package authz

import (
	"fmt"
	"strings"
)

// ResourceType tags the kinds of records the engine rules over. The audit
// log is a first-class variant so its visibility goes through the same table
// as everything else.
type ResourceType string

const (
	ResourceCustomer ResourceType = "customer"
	ResourceDeal     ResourceType = "deal"
	ResourceNote     ResourceType = "note"
	ResourceUser     ResourceType = "user"
	ResourceAuditLog ResourceType = "audit_log"
)

// ParseResourceType normalizes and validates a resource type name.
func ParseResourceType(s string) (ResourceType, error) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(s))) {
	case ResourceCustomer:
		return ResourceCustomer, nil
	case ResourceDeal:
		return ResourceDeal, nil
	case ResourceNote:
		return ResourceNote, nil
	case ResourceUser:
		return ResourceUser, nil
	case ResourceAuditLog:
		return ResourceAuditLog, nil
	}
	return "", fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, s)
}

func (t ResourceType) Valid() bool {
	_, err := ParseResourceType(string(t))
	return err == nil
}

// Operation is the requested action on a resource.
type Operation string

const (
	OpRead   Operation = "read"
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpAssign Operation = "assign"
)

func (o Operation) Valid() bool {
	switch o {
	case OpRead, OpList, OpCreate, OpUpdate, OpDelete, OpAssign:
		return true
	}
	return false
}

func (o Operation) mutating() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpAssign:
		return true
	}
	return false
}

// Resource describes the target of an authorization check. The engine only
// reads the ownership fields; the record itself lives elsewhere.
//
// Owner is the assigned_to reference; nil means the record is unassigned.
// NewOwner carries the requested assignee for assign operations, and for
// create/update operations that set assigned_to.
//
// For user records the owner is the subject user itself; for audit_log
// entries it is the acting user.
type Resource struct {
	Type     ResourceType
	ID       string
	Owner    *string
	NewOwner *string
}

func (r Resource) owned() bool {
	return r.Owner != nil && *r.Owner != ""
}
