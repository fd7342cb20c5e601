package negotiation

import (
	"errors"
	"fmt"
)

var (
	// ErrNegotiation matches every negotiation failure.
	ErrNegotiation = errors.New("buffer negotiation failed")
	// ErrDisjoint means two requirement ranges do not overlap.
	ErrDisjoint = errors.New("requirement ranges do not overlap")
	// ErrInvalidRange means min <= optimal <= max does not hold.
	ErrInvalidRange = errors.New("invalid requirement range")
	// ErrOutOfBounds means a concrete format violates a port's range.
	ErrOutOfBounds = errors.New("resolution outside hardware bounds")
)

// Error is a negotiation failure attributed to a node port.
type Error struct {
	Node  string
	Port  string
	Cause error
}

func (e *Error) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("negotiation: node %s: %v", e.Node, e.Cause)
	}
	return fmt.Sprintf("negotiation: node %s port %s: %v", e.Node, e.Port, e.Cause)
}

// Unwrap exposes both ErrNegotiation and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	return []error{ErrNegotiation, e.Cause}
}

// Errorf builds an Error whose cause is formatted like fmt.Errorf.
func Errorf(node, port, format string, args ...any) *Error {
	return &Error{Node: node, Port: port, Cause: fmt.Errorf(format, args...)}
}
