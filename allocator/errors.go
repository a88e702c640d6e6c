package allocator

import "github.com/pkg/errors"

var (
	// ErrInsufficientResources is returned by UpdateAvailable when the
	// agent's available pool does not contain the operation operands. The
	// agent state is left untouched.
	ErrInsufficientResources = errors.New("insufficient available resources")

	// ErrInvalidOperation names the error kind of offer operations that do
	// not apply to the stated resources. updateAllocation logs and drops
	// such operations; no code path returns or wraps this value.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrQueueFull is returned when the event queue is saturated and an
	// operation cannot be accepted.
	ErrQueueFull = errors.New("allocator event queue is full")

	// ErrNotRunning is returned when an operation is submitted before
	// Start or after Stop.
	ErrNotRunning = errors.New("allocator is not running")
)

func errUnknownAgent(id AgentID) error {
	return errors.Errorf("unknown agent %s", id)
}

func errUnknownFramework(id FrameworkID) error {
	return errors.Errorf("unknown framework %s", id)
}
