package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph  = errors.New("invalid stage graph")
	ErrCycleDetected = errors.New("cycle detected")
)

// Error wraps graph validation failures. Path holds one cycle witness when
// Kind is ErrCycleDetected.
type Error struct {
	Kind error
	Path []string
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	return &Error{Kind: ErrCycleDetected, Path: path, Msg: strings.Join(path, " -> ")}
}

// CyclePath returns the cycle witness carried by err, if any.
func CyclePath(err error) []string {
	var ge *Error
	if errors.As(err, &ge) && errors.Is(ge.Kind, ErrCycleDetected) {
		return ge.Path
	}
	return nil
}
