package resources

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// epsilon guards float comparisons on scalar values. Mirrors the tolerance
// used when validating operations against fractional cpu values.
const epsilon = 1e-9

// Type describes the value carried by a Resource.
type Type int

const (
	// SCALAR is a floating point quantity, e.g. cpus or mem.
	SCALAR Type = iota
	// RANGES is a set of disjoint integer ranges, e.g. ports.
	RANGES
	// SET is a set of strings.
	SET
)

// UnreservedRole is the role name denoting unreserved resources.
const UnreservedRole = "*"

// Reservation marks a resource as reserved for a role. A static
// reservation is configured on the agent; a dynamic one is created via a
// RESERVE operation and carries the reserving principal and labels.
type Reservation struct {
	Role      string
	Dynamic   bool
	Principal string
	Labels    map[string]string
}

// Disk identifies a persistent volume carved out of disk resources.
type Disk struct {
	PersistenceID string
	Principal     string
	ContainerPath string
}

// Resource is a single typed resource entry. Two entries with identical
// identity fields (everything except the value) merge when added.
type Resource struct {
	Name        string
	Type        Type
	Scalar      float64
	Ranges      []Range
	Set         []string
	Reservation *Reservation
	Revocable   bool
	Disk        *Disk
	Shared      bool

	// shareCount tracks extra logical copies of a shared resource beyond
	// the first. Shared resources are idempotent under addition; the count
	// only decides when repeated subtraction finally removes the entry.
	shareCount int
}

// Role returns the reservation role of the resource, or "*" when the
// resource is unreserved.
func (r *Resource) Role() string {
	if r.Reservation == nil {
		return UnreservedRole
	}
	return r.Reservation.Role
}

// IsUnreserved returns whether the resource carries no reservation.
func (r *Resource) IsUnreserved() bool {
	return r.Reservation == nil
}

// IsReservedFor returns whether the resource is reserved for the given role.
func (r *Resource) IsReservedFor(role string) bool {
	return r.Reservation != nil && r.Reservation.Role == role
}

// IsEmpty returns whether the resource holds no value.
func (r *Resource) IsEmpty() bool {
	switch r.Type {
	case SCALAR:
		return r.Scalar < epsilon && !r.Shared
	case RANGES:
		return len(r.Ranges) == 0
	case SET:
		return len(r.Set) == 0
	}
	return true
}

func reservationEquals(a, b *Reservation) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Role != b.Role || a.Dynamic != b.Dynamic || a.Principal != b.Principal {
		return false
	}
	if len(a.Labels) != len(b.Labels) {
		return false
	}
	for k, v := range a.Labels {
		if b.Labels[k] != v {
			return false
		}
	}
	return true
}

func diskEquals(a, b *Disk) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameIdentity reports whether two entries agree on every field that
// participates in merging, i.e. everything but the value.
func sameIdentity(a, b *Resource) bool {
	return a.Name == b.Name &&
		a.Type == b.Type &&
		a.Revocable == b.Revocable &&
		a.Shared == b.Shared &&
		reservationEquals(a.Reservation, b.Reservation) &&
		diskEquals(a.Disk, b.Disk)
}

// sameValue reports whether two entries carry an identical value. Shared
// resources merge only when the value also matches, since a shared entry
// stands for one specific logical unit such as a volume.
func sameValue(a, b *Resource) bool {
	switch a.Type {
	case SCALAR:
		return math.Abs(a.Scalar-b.Scalar) < epsilon
	case RANGES:
		return rangesEqual(a.Ranges, b.Ranges)
	case SET:
		return setEqual(a.Set, b.Set)
	}
	return false
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]struct{}, len(a))
	for _, s := range a {
		m[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := m[s]; !ok {
			return false
		}
	}
	return true
}

func setUnion(a, b []string) []string {
	m := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range a {
		if _, ok := m[s]; !ok {
			m[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := m[s]; !ok {
			m[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func setMinus(a, b []string) []string {
	m := make(map[string]struct{}, len(b))
	for _, s := range b {
		m[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := m[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func setContains(a, b []string) bool {
	m := make(map[string]struct{}, len(a))
	for _, s := range a {
		m[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := m[s]; !ok {
			return false
		}
	}
	return true
}

// Bundle is a canonicalized multiset of resources. The zero value is an
// empty bundle. All operations are pure and return fresh bundles.
type Bundle []Resource

// clone returns a deep enough copy for mutation of value fields.
func (b Bundle) clone() Bundle {
	out := make(Bundle, len(b))
	copy(out, b)
	for i := range out {
		if out[i].Ranges != nil {
			out[i].Ranges = append([]Range(nil), out[i].Ranges...)
		}
		if out[i].Set != nil {
			out[i].Set = append([]string(nil), out[i].Set...)
		}
	}
	return out
}

func cloneResource(r Resource) Resource {
	if r.Ranges != nil {
		r.Ranges = append([]Range(nil), r.Ranges...)
	}
	if r.Set != nil {
		r.Set = append([]string(nil), r.Set...)
	}
	return r
}

// addOne merges a single resource into the bundle in place.
func (b Bundle) addOne(r Resource) Bundle {
	if r.IsEmpty() {
		return b
	}
	for i := range b {
		if !sameIdentity(&b[i], &r) {
			continue
		}
		if b[i].Shared {
			if sameValue(&b[i], &r) {
				b[i].shareCount += r.shareCount + 1
				return b
			}
			continue
		}
		switch r.Type {
		case SCALAR:
			b[i].Scalar += r.Scalar
			return b
		case RANGES:
			b[i].Ranges = rangesUnion(b[i].Ranges, r.Ranges)
			return b
		case SET:
			b[i].Set = setUnion(b[i].Set, r.Set)
			return b
		}
	}
	return append(b, cloneResource(r))
}

// subtractOne removes a single resource from the bundle in place.
// Quantities that drop below zero are clamped and empty entries removed.
func (b Bundle) subtractOne(r Resource) Bundle {
	if r.IsEmpty() {
		return b
	}
	for i := range b {
		if !sameIdentity(&b[i], &r) {
			continue
		}
		if b[i].Shared {
			if !sameValue(&b[i], &r) {
				continue
			}
			// One subtraction per addition; the entry survives until more
			// copies are taken out than were ever put in.
			b[i].shareCount -= r.shareCount + 1
			if b[i].shareCount < 0 {
				return append(b[:i], b[i+1:]...)
			}
			return b
		}
		switch r.Type {
		case SCALAR:
			b[i].Scalar -= r.Scalar
			if b[i].Scalar < epsilon {
				return append(b[:i], b[i+1:]...)
			}
			return b
		case RANGES:
			b[i].Ranges = rangesMinus(b[i].Ranges, r.Ranges)
			if len(b[i].Ranges) == 0 {
				return append(b[:i], b[i+1:]...)
			}
			return b
		case SET:
			b[i].Set = setMinus(b[i].Set, r.Set)
			if len(b[i].Set) == 0 {
				return append(b[:i], b[i+1:]...)
			}
			return b
		}
	}
	return b
}

// Add returns the sum of two bundles.
func (b Bundle) Add(other Bundle) Bundle {
	out := b.clone()
	for _, r := range other {
		out = out.addOne(r)
	}
	return out
}

// Subtract returns the difference of two bundles. Entries not present in
// the receiver are ignored; quantities clamp at zero.
func (b Bundle) Subtract(other Bundle) Bundle {
	out := b.clone()
	for _, r := range other {
		out = out.subtractOne(r)
	}
	return out
}

// containsOne checks a single resource against the bundle.
func (b Bundle) containsOne(r *Resource) bool {
	for i := range b {
		if !sameIdentity(&b[i], r) {
			continue
		}
		if b[i].Shared {
			if sameValue(&b[i], r) {
				return true
			}
			continue
		}
		switch r.Type {
		case SCALAR:
			if b[i].Scalar+epsilon >= r.Scalar {
				return true
			}
		case RANGES:
			if rangesContain(b[i].Ranges, r.Ranges) {
				return true
			}
		case SET:
			if setContains(b[i].Set, r.Set) {
				return true
			}
		}
	}
	return false
}

// Contains determines whether the bundle is large enough to cover the
// other one entry by entry.
func (b Bundle) Contains(other Bundle) bool {
	// Subtracting first collapses duplicate identities in `other` so a
	// split request cannot pass against a single merged entry.
	remaining := b.clone()
	for _, r := range other {
		if !remaining.containsOne(&r) {
			return false
		}
		remaining = remaining.subtractOne(r)
	}
	return true
}

// TrySubtract returns the difference, or nil when the receiver does not
// contain the subtrahend.
func (b Bundle) TrySubtract(other Bundle) Bundle {
	if !b.Contains(other) {
		return nil
	}
	return b.Subtract(other)
}

// IsEmpty returns whether the bundle holds no resources.
func (b Bundle) IsEmpty() bool {
	for i := range b {
		if !b[i].IsEmpty() {
			return false
		}
	}
	return true
}

// Filter returns the entries matching the predicate.
func (b Bundle) Filter(pred func(*Resource) bool) Bundle {
	var out Bundle
	for i := range b {
		if pred(&b[i]) {
			out = out.addOne(b[i])
		}
	}
	return out
}

// Unreserved returns the entries carrying no reservation.
func (b Bundle) Unreserved() Bundle {
	return b.Filter(func(r *Resource) bool { return r.IsUnreserved() })
}

// Reserved returns the entries reserved for the given role.
func (b Bundle) Reserved(role string) Bundle {
	return b.Filter(func(r *Resource) bool { return r.IsReservedFor(role) })
}

// AnyReserved returns every reserved entry regardless of role.
func (b Bundle) AnyReserved() Bundle {
	return b.Filter(func(r *Resource) bool { return !r.IsUnreserved() })
}

// Revocable returns the revocable entries.
func (b Bundle) Revocable() Bundle {
	return b.Filter(func(r *Resource) bool { return r.Revocable })
}

// NonRevocable returns the non-revocable entries.
func (b Bundle) NonRevocable() Bundle {
	return b.Filter(func(r *Resource) bool { return !r.Revocable })
}

// Shared returns the shared entries.
func (b Bundle) Shared() Bundle {
	return b.Filter(func(r *Resource) bool { return r.Shared })
}

// NonShared returns the non-shared entries.
func (b Bundle) NonShared() Bundle {
	return b.Filter(func(r *Resource) bool { return !r.Shared })
}

// Flatten strips every reservation, turning the bundle into its
// unreserved equivalent.
func (b Bundle) Flatten() Bundle {
	var out Bundle
	for _, r := range b.clone() {
		r.Reservation = nil
		out = out.addOne(r)
	}
	return out
}

// FlattenTo reassigns every entry to a dynamic reservation for the given
// role and principal. Flattening to "*" is the same as Flatten.
func (b Bundle) FlattenTo(role, principal string) Bundle {
	if role == UnreservedRole {
		return b.Flatten()
	}
	var out Bundle
	for _, r := range b.clone() {
		r.Reservation = &Reservation{
			Role:      role,
			Dynamic:   true,
			Principal: principal,
		}
		out = out.addOne(r)
	}
	return out
}

// Scalar returns the total scalar quantity of the named resource across
// the bundle, ignoring reservations and revocability.
func (b Bundle) Scalar(name string) float64 {
	var total float64
	for i := range b {
		if b[i].Name == name && b[i].Type == SCALAR {
			total += b[i].Scalar
		}
	}
	return total
}

// Names returns the distinct resource names present in the bundle.
func (b Bundle) Names() []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range b {
		if _, ok := seen[b[i].Name]; !ok {
			seen[b[i].Name] = struct{}{}
			out = append(out, b[i].Name)
		}
	}
	sort.Strings(out)
	return out
}

// String renders the bundle in the "name(role):value" notation used in
// logs and tests.
func (b Bundle) String() string {
	parts := make([]string, 0, len(b))
	for i := range b {
		parts = append(parts, b[i].String())
	}
	return strings.Join(parts, ";")
}

// String renders a single resource entry.
func (r Resource) String() string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	if r.Reservation != nil {
		fmt.Fprintf(&sb, "(%s)", r.Reservation.Role)
	}
	if r.Disk != nil {
		fmt.Fprintf(&sb, "[%s]", r.Disk.PersistenceID)
	}
	sb.WriteString(":")
	switch r.Type {
	case SCALAR:
		fmt.Fprintf(&sb, "%g", r.Scalar)
	case RANGES:
		sb.WriteString("[")
		for i, rng := range r.Ranges {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "%d-%d", rng.Begin, rng.End)
		}
		sb.WriteString("]")
	case SET:
		fmt.Fprintf(&sb, "{%s}", strings.Join(r.Set, ","))
	}
	if r.Revocable {
		sb.WriteString("{REV}")
	}
	if r.Shared {
		sb.WriteString("<shared>")
	}
	return sb.String()
}
