package tcb

import "errors"

var (
	// ErrNoSYN is returned by Accept when the inbound segment that
	// would open a new connection carries no SYN flag; the
	// demultiplexer answers such segments with a port-closed RST.
	ErrNoSYN = errors.New("tcb: segment without SYN cannot open a connection")
	// ErrUnreachableState marks a flag/state combination the reduced
	// state machine does not define a transition for. The segment is
	// logged and dropped; the connection is left untouched.
	ErrUnreachableState = errors.New("tcb: unreachable state/flag combination")
)
