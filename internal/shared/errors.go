package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal may not touch the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates the request carried no usable principal.
	ErrUnauthenticated = errors.New("unauthenticated")
)
