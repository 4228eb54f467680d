// SPDX-License-Identifier: MPL-2.0

package invocation

import (
	"errors"
	"fmt"
)

// ErrNoMatch is the sentinel returned when no descriptor in an overload set
// produces a total assignment (spec.md §4.2/§9: AmbiguousOverload ≡
// no-descriptor-succeeds). Per spec.md §7 this is non-fatal: the caller
// marks the stage non-acceleratable and falls back to local execution.
var ErrNoMatch = errors.New("no matching annotation overload")

// NoMatchError wraps ErrNoMatch with the per-descriptor attempt failures,
// useful for diagnostics even though the disposition is always "fall back".
type NoMatchError struct {
	CommandName string
	Attempts    []error
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no overload of %q matched (%d attempt(s) failed)", e.CommandName, len(e.Attempts))
}

// Unwrap returns ErrNoMatch for errors.Is compatibility.
func (e *NoMatchError) Unwrap() error { return ErrNoMatch }

type (
	// UnknownArgumentError is raised when a token is neither a recognized
	// flag/optparam key nor consumable by a remaining positional Param.
	UnknownArgumentError struct {
		Token string
		Pos   int
	}

	// TooFewValuesError is raised when a value block needs more tokens
	// than remain, or when a Param is left unsatisfied at completeness check.
	TooFewValuesError struct {
		Arg     string
		Wanted  int
		Got     int
	}

	// TooManyValuesError is raised when a value block's size bounds an
	// upper count the actual token run exceeds. Reserved for annotation
	// size specs with a fixed upper bound; this implementation's greedy
	// scanner never over-consumes a bounded value block, so this is kept
	// for API completeness with spec.md §4.2's failure-kind taxonomy.
	TooManyValuesError struct {
		Arg    string
		Wanted int
		Got    int
	}
)

func (e *UnknownArgumentError) Error() string {
	return fmt.Sprintf("unrecognized argument %q at position %d", e.Token, e.Pos)
}

func (e *TooFewValuesError) Error() string {
	return fmt.Sprintf("too few values for %s: wanted %d, got %d", e.Arg, e.Wanted, e.Got)
}

func (e *TooManyValuesError) Error() string {
	return fmt.Sprintf("too many values for %s: wanted %d, got %d", e.Arg, e.Wanted, e.Got)
}
