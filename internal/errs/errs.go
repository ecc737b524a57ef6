// Package errs defines the error kinds surfaced by the bundle reader.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Kind values are errors themselves so callers
// can match them with errors.Is.
type Kind uint8

const (
	Other Kind = iota
	Io
	UnsupportedFormat
	Truncated
	CorruptStream
	BadHandle
	OutOfRange
)

var kindNames = map[Kind]string{
	Other:             "Other",
	Io:                "Io",
	UnsupportedFormat: "UnsupportedFormat",
	Truncated:         "Truncated",
	CorruptStream:     "CorruptStream",
	BadHandle:         "BadHandle",
	OutOfRange:        "OutOfRange",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) Error() string {
	return k.String()
}

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against a bare Kind so errors.Is(err, errs.Truncated)
// works through any wrapping.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// E builds a kinded error. The format follows fmt.Errorf, including %w.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind to err unless err already carries a kind.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost kinded error in err's chain,
// or Other when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Other
}
