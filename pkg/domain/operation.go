package domain

import "time"

// OperationDeclaration describes one operation a provider's addon imp
// exposes: its stable name, which capability gates it, its execution
// mode, and the argument shape its JSON schema is derived from. The
// Operation Declaration & Registry component (pkg/addon) is where these
// get attached to concrete Go methods; this type is the data the
// registry indexes.
type OperationDeclaration struct {
	Name               string
	RequiredCapability Capability
	Mode               ExecutionMode
	// ArgsShape is a zero-value instance of the Go struct an invocation's
	// arguments bind into, e.g. addon.ItemIDArgs{}. Nil means the
	// operation takes no declared arguments and args pass through
	// unvalidated (no network provider operation currently does this).
	ArgsShape any
}

// ExecutionMode is how an Invocation Engine dispatch carries out an
// operation once capability and dibs checks pass.
type ExecutionMode string

const (
	// ModeImmediate runs synchronously within the request that invoked it.
	ModeImmediate ExecutionMode = "immediate"
	// ModeRedirect returns a redirect URL for the caller to follow (e.g.
	// kicking off an OAuth1/OAuth2 handshake) rather than a result.
	ModeRedirect ExecutionMode = "redirect"
	// ModeDeferred enqueues the operation for a worker to run later,
	// returning an invocation id the caller polls.
	ModeDeferred ExecutionMode = "deferred"
)

// InvocationStatus is a state in the Invocation Engine's state machine:
// STARTING -> (DIBS_DENIED | IN_PROGRESS) -> (SUCCESS | PROBLEM).
type InvocationStatus string

const (
	StatusStarting   InvocationStatus = "starting"
	StatusDibsDenied InvocationStatus = "dibs_denied"
	StatusInProgress InvocationStatus = "in_progress"
	StatusSuccess    InvocationStatus = "success"
	StatusProblem    InvocationStatus = "problem"
)

// OperationInvocation is the persisted record of one attempt to run an
// operation: a log entry that doubles as the deferred-queue work item and
// the dibs lease record.
type OperationInvocation struct {
	ID             string
	AddonID        string
	OperationName  string
	Arguments      map[string]any
	Status         InvocationStatus
	Result         any
	ErrorKind      string
	ErrorMessage   string
	CreatedAtUTC   time.Time
	UpdatedAtUTC   time.Time
	DibsHolder     string
	DibsExpiresAtUTC *time.Time
}

// CanTransitionTo reports whether moving from i's current status to next
// is a legal state machine edge.
func (i OperationInvocation) CanTransitionTo(next InvocationStatus) bool {
	switch i.Status {
	case StatusStarting:
		return next == StatusDibsDenied || next == StatusInProgress
	case StatusInProgress:
		return next == StatusSuccess || next == StatusProblem
	default:
		return false
	}
}
