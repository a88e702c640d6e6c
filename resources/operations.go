package resources

import (
	"github.com/pkg/errors"
)

// OperationType enumerates the offer operations the allocator applies to
// resource bundles.
type OperationType int

const (
	// RESERVE dynamically reserves unreserved resources for a role.
	RESERVE OperationType = iota
	// UNRESERVE releases a dynamic reservation.
	UNRESERVE
	// CREATE carves a persistent volume out of disk resources.
	CREATE
	// DESTROY removes a persistent volume, returning plain disk.
	DESTROY
	// LAUNCH consumes resources for a task; it leaves the bundle intact
	// and only validates containment.
	LAUNCH
)

func (t OperationType) String() string {
	switch t {
	case RESERVE:
		return "RESERVE"
	case UNRESERVE:
		return "UNRESERVE"
	case CREATE:
		return "CREATE"
	case DESTROY:
		return "DESTROY"
	case LAUNCH:
		return "LAUNCH"
	}
	return "UNKNOWN"
}

// Operation is one offer operation.
type Operation struct {
	Type OperationType

	// Resources carries the reserved resources for RESERVE/UNRESERVE and
	// the task resources for LAUNCH.
	Resources Bundle

	// Volumes carries the persistent volumes for CREATE/DESTROY.
	Volumes Bundle
}

// Apply validates the operation against the bundle and returns the
// post-operation bundle. The receiver is left untouched; on failure the
// returned error wraps the precise containment violation.
func (b Bundle) Apply(op *Operation) (Bundle, error) {
	switch op.Type {
	case RESERVE:
		out := b.clone()
		for _, r := range op.Resources {
			if r.IsUnreserved() || r.Reservation == nil || !r.Reservation.Dynamic {
				return nil, errors.Errorf(
					"invalid RESERVE: %v is not dynamically reserved", r)
			}
			unreserved := Bundle{r}.Flatten()
			if !out.Contains(unreserved) {
				return nil, errors.Errorf(
					"invalid RESERVE: %v does not contain %v", out, unreserved)
			}
			out = out.Subtract(unreserved).Add(Bundle{r})
		}
		return out, nil

	case UNRESERVE:
		out := b.clone()
		for _, r := range op.Resources {
			if r.Reservation == nil || !r.Reservation.Dynamic {
				return nil, errors.Errorf(
					"invalid UNRESERVE: %v is not dynamically reserved", r)
			}
			if !out.Contains(Bundle{r}) {
				return nil, errors.Errorf(
					"invalid UNRESERVE: %v does not contain %v", out, r)
			}
			out = out.Subtract(Bundle{r}).Add(Bundle{r}.Flatten())
		}
		return out, nil

	case CREATE:
		out := b.clone()
		for _, v := range op.Volumes {
			if v.Disk == nil || v.Disk.PersistenceID == "" {
				return nil, errors.Errorf(
					"invalid CREATE: %v is not a persistent volume", v)
			}
			stripped := cloneResource(v)
			stripped.Disk = nil
			stripped.Shared = false
			if !out.Contains(Bundle{stripped}) {
				return nil, errors.Errorf(
					"invalid CREATE: %v does not contain %v", out, stripped)
			}
			out = out.Subtract(Bundle{stripped}).Add(Bundle{v})
		}
		return out, nil

	case DESTROY:
		out := b.clone()
		for _, v := range op.Volumes {
			if v.Disk == nil || v.Disk.PersistenceID == "" {
				return nil, errors.Errorf(
					"invalid DESTROY: %v is not a persistent volume", v)
			}
			if !out.Contains(Bundle{v}) {
				return nil, errors.Errorf(
					"invalid DESTROY: %v does not contain %v", out, v)
			}
			stripped := cloneResource(v)
			stripped.Disk = nil
			stripped.Shared = false
			stripped.shareCount = 0
			out = out.Subtract(Bundle{v}).Add(Bundle{stripped})
		}
		return out, nil

	case LAUNCH:
		if !b.Contains(op.Resources) {
			return nil, errors.Errorf(
				"invalid LAUNCH: %v does not contain %v", b, op.Resources)
		}
		return b.clone(), nil
	}

	return nil, errors.Errorf("unknown operation type %d", op.Type)
}
