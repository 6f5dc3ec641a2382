package engine

import "errors"

// Configuration errors: the definition or call is wrong and must be fixed by
// a user. Never worked around silently.
var (
	ErrProcessInactive    = errors.New("process is not active")
	ErrNoStartNode        = errors.New("process has no start node")
	ErrMultipleStartNodes = errors.New("process has multiple start nodes")
	ErrUnknownNode        = errors.New("node not found in process definition")
	ErrNotDraft           = errors.New("instance must be draft to start")
	ErrNotRunning         = errors.New("instance is not running")
	ErrNoCurrentNode      = errors.New("instance has no current node")
	ErrTerminalState      = errors.New("instance already reached a terminal state")
	ErrGraphInvalid       = errors.New("process graph failed validation")
)

// Blocked-workflow errors: raised synchronously from an advance, leaving the
// instance running at its last node so the situation can be fixed and the
// advance replayed.
var (
	ErrDanglingReference    = errors.New("target record no longer exists (dangling reference)")
	ErrNoOutgoingEdge       = errors.New("process blocked: no outgoing transition")
	ErrNoSatisfiedCondition = errors.New("no transition condition satisfied")
)

// Authorization errors on manual task validation.
var (
	ErrNotAwaitingValidation = errors.New("current node does not await manual validation")
	ErrNotAuthorized         = errors.New("user is not authorized to act on this task")
)

// IsConfigurationError reports whether err stems from an invalid definition
// or an operation called in the wrong state.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrProcessInactive) ||
		errors.Is(err, ErrNoStartNode) ||
		errors.Is(err, ErrMultipleStartNodes) ||
		errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, ErrNotDraft) ||
		errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrNoCurrentNode) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrGraphInvalid)
}

// IsBlockedError reports whether err left the instance running but unable to
// advance until conditions change. Replaying the advance is the recovery
// path.
func IsBlockedError(err error) bool {
	return errors.Is(err, ErrDanglingReference) ||
		errors.Is(err, ErrNoOutgoingEdge) ||
		errors.Is(err, ErrNoSatisfiedCondition)
}

// IsAuthorizationError reports whether err is an authorization failure on a
// manual task.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrNotAwaitingValidation)
}
