package authorization

import "errors"

// Sentinel errors for the security engine. Authorization denials are never
// errors: a denial comes back as false / an empty slice / nil. These cover
// caller mistakes and infrastructure failures only.
var (
	// ErrInvalidArgument reports a nil or empty required parameter,
	// caught at the boundary before any engine logic runs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidPermission reports a permission name absent from the
	// predicate catalog.
	ErrInvalidPermission = errors.New("invalid permission name")

	// ErrInvalidToken reports a caller token that is nil, empty, or names
	// an identity absent from the directory.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrAllowDenyConflict reports a permission map entry requesting both
	// allow and deny simultaneously.
	ErrAllowDenyConflict = errors.New("permission entry requests both allow and deny")

	// ErrConfiguration reports security settings or a predicate table that
	// failed to initialize.
	ErrConfiguration = errors.New("security configuration error")
)
