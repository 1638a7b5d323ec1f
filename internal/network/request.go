package network

import (
	"net/url"
)

// Service selects which host a request is sent to.
type Service int

const (
	// ServiceAPI is the regional REST and socket API.
	ServiceAPI Service = iota
	// ServiceAccounts is the global sign-in host.
	ServiceAccounts
)

// Request describes one REST or socket call without performing I/O.
type Request struct {
	// Name labels the call in logs and metrics, e.g. "session.open".
	Name    string
	Service Service
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
	// SkipAuth suppresses the bearer token, for the sign-in call.
	SkipAuth bool
	// Debug logs the response body of successful calls.
	Debug bool
}

// Header returns the value of a descriptor header, matched exactly.
func (r Request) Header(key string) string {
	return r.Headers[key]
}
