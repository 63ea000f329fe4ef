package homework

import (
	"errors"
	"fmt"
)

// Kind classifies homework errors.
type Kind string

const (
	KindConfigurationMissing Kind = "configuration_missing"
	KindResponseFailure      Kind = "response_failure"
	KindTypeMismatch         Kind = "type_mismatch"
	KindMissingField         Kind = "missing_field"
)

var (
	ErrConfigurationMissing = errors.New("required configuration is missing")
	ErrResponseFailure      = errors.New("api response failure")
	ErrTypeMismatch         = errors.New("unexpected response type")
	ErrMissingField         = errors.New("missing or unknown field")
)

// Error carries the failing operation next to its Kind.
// errors.Is matches the Kind's sentinel and, if set, the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Msg
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindConfigurationMissing:
		return ErrConfigurationMissing
	case KindResponseFailure:
		return ErrResponseFailure
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindMissingField:
		return ErrMissingField
	default:
		return nil
	}
}

func newError(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ConfigurationMissing reports which required settings are absent.
func ConfigurationMissing(names ...string) error {
	return newError(KindConfigurationMissing, "check_tokens", nil, "missing environment variables: %v", names)
}

// KindOf returns the Kind of err, or "" if err is not a homework error.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return ""
}
