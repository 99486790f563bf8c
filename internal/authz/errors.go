package authz

import "errors"

var (
	// ErrInvalidInput marks programming errors at the engine boundary:
	// unknown resource types, operations, or a principal without a role.
	// These are deliberately loud instead of being folded into a denial.
	ErrInvalidInput = errors.New("authz: invalid input")

	// ErrPrincipalNotFound is returned by Directory implementations when
	// no principal exists for an id.
	ErrPrincipalNotFound = errors.New("authz: principal not found")
)
