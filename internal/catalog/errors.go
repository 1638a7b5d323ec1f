package catalog

import "errors"

var (
	// ErrUnknownDevice is returned for a descriptor id missing from the catalog.
	ErrUnknownDevice = errors.New("unknown device descriptor")
	// ErrInvalidCredentials is returned by SignIn for blank credentials.
	ErrInvalidCredentials = errors.New("username and password are required")
)
