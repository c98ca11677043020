package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure
type Kind int

const (
	// KindUnreachable covers transport failures and timeouts
	KindUnreachable Kind = iota + 1
	// KindRejected is a non-2xx HTTP response
	KindRejected
	// KindDeclined is a 2xx response whose body reports a business failure
	KindDeclined
	// KindMalformed is a 2xx response that could not be decoded or misses required fields
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindRejected:
		return "rejected"
	case KindDeclined:
		return "declined"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

var (
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrGatewayDeclined    = errors.New("payment gateway declined the request")
	ErrGatewayMalformed   = errors.New("payment gateway returned a malformed response")
)

// Error is returned by every Client method that fails
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRejected:
		return fmt.Sprintf("chapa %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case KindDeclined:
		return fmt.Sprintf("chapa %s declined: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("chapa %s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("chapa %s %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match on the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrGatewayUnreachable:
		return e.Kind == KindUnreachable
	case ErrGatewayRejected:
		return e.Kind == KindRejected
	case ErrGatewayDeclined:
		return e.Kind == KindDeclined
	case ErrGatewayMalformed:
		return e.Kind == KindMalformed
	}
	return false
}
