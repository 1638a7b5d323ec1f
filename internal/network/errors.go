package network

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidServerResponse
	KindInvalidURL
	KindUnauthorized
	KindRequestFailure
	KindParseFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidServerResponse:
		return "invalid_server_response"
	case KindInvalidURL:
		return "invalid_url"
	case KindUnauthorized:
		return "unauthorized"
	case KindRequestFailure:
		return "request_failure"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// Error is the single transport error taxonomy shared by REST and socket
// paths. RequestFailure errors carry the HTTP status and response body.
type Error struct {
	Kind       Kind
	StatusCode int
	Body       []byte
	Err        error
}

var (
	ErrInvalidServerResponse = &Error{Kind: KindInvalidServerResponse}
	ErrInvalidURL            = &Error{Kind: KindInvalidURL}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidServerResponse:
		return "the server returned an invalid response"
	case KindInvalidURL:
		if e.Err != nil {
			return fmt.Sprintf("url string is malformed: %v", e.Err)
		}
		return "url string is malformed"
	case KindUnauthorized:
		return "this request requires authentication"
	case KindRequestFailure:
		return fmt.Sprintf("request failure: status %d", e.StatusCode)
	case KindParseFailure:
		return fmt.Sprintf("request failed to parse: %v", e.Err)
	default:
		return fmt.Sprintf("request failed for unknown reasons: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so the sentinels work with
// errors.Is regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return KindUnknown
}

func unknown(err error) error {
	return &Error{Kind: KindUnknown, Err: err}
}
