package stream

// State is the lifecycle position of a Session.
//
//	Idle -> Forwarding -> (Completing | Aborting) -> Closed
//
// Completing and Aborting are only entered from Forwarding, which makes the
// three terminal triggers (upstream end, upstream error, client disconnect)
// mutually exclusive: the first one to arrive wins.
type State int

const (
	StateIdle State = iota
	StateForwarding
	StateCompleting
	StateAborting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateForwarding:
		return "forwarding"
	case StateCompleting:
		return "completing"
	case StateAborting:
		return "aborting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outcome records why a Session closed.
type Outcome string

const (
	// OutcomeCompleted: the upstream ended and the terminal record was sent.
	OutcomeCompleted Outcome = "completed"

	// OutcomeUpstreamError: the upstream answered with a non-2xx status or
	// failed mid-stream.
	OutcomeUpstreamError Outcome = "upstream_error"

	// OutcomeUnreachable: no upstream response headers were obtained.
	OutcomeUnreachable Outcome = "unreachable"

	// OutcomeDisconnected: the client went away first.
	OutcomeDisconnected Outcome = "disconnected"

	// OutcomeInternalError: the session panicked.
	OutcomeInternalError Outcome = "internal_error"
)
