package game

import "errors"

// Error taxonomy heads. Specific errors wrap exactly one of these so
// callers can dispatch with errors.Is at the API boundary.
var (
	// ErrValidation marks malformed input, rejected before any state read.
	ErrValidation = errors.New("validation error")

	// ErrPrecondition marks a well-formed request that the current game
	// state forbids. Rejected after a read, before any mutation.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConsistency marks lock or concurrent-modification failures.
	// Transient; the caller may retry a bounded number of times.
	ErrConsistency = errors.New("consistency error")

	// ErrDependency marks an unreachable external collaborator.
	ErrDependency = errors.New("dependency unavailable")
)

var (
	ErrOwnerNotFound     = wrap("owner not found", ErrPrecondition)
	ErrSelfTarget        = wrap("cannot target self", ErrPrecondition)
	ErrSameAlliance      = wrap("target is in the same alliance", ErrPrecondition)
	ErrInsufficientTurns = wrap("not enough action turns", ErrPrecondition)
	ErrInsufficientFunds = wrap("not enough credits", ErrPrecondition)
	ErrNoUnits           = wrap("no units of the required type", ErrPrecondition)
	ErrLevelBracket      = wrap("target outside level bracket", ErrPrecondition)

	// ErrNoVaultData means the owner has no vault row. Absent data is
	// reported, never defaulted to free capacity.
	ErrNoVaultData = wrap("vault data not found", ErrDependency)
)

// wrapped pairs a message with a taxonomy head.
type wrapped struct {
	msg  string
	head error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.head }

func wrap(msg string, head error) error {
	return &wrapped{msg: msg, head: head}
}
