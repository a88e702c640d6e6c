package resources

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NewScalar builds an unreserved scalar resource.
func NewScalar(name string, value float64) Resource {
	return Resource{Name: name, Type: SCALAR, Scalar: value}
}

// NewReservedScalar builds a scalar statically reserved for a role.
func NewReservedScalar(name string, value float64, role string) Resource {
	r := NewScalar(name, value)
	if role != UnreservedRole {
		r.Reservation = &Reservation{Role: role}
	}
	return r
}

// NewDynamicReservedScalar builds a scalar dynamically reserved for a role
// on behalf of a principal.
func NewDynamicReservedScalar(name string, value float64, role, principal string) Resource {
	r := NewScalar(name, value)
	r.Reservation = &Reservation{Role: role, Dynamic: true, Principal: principal}
	return r
}

// NewRevocableScalar builds a revocable scalar resource.
func NewRevocableScalar(name string, value float64) Resource {
	r := NewScalar(name, value)
	r.Revocable = true
	return r
}

// NewVolume builds a persistent volume out of disk.
func NewVolume(value float64, role, persistenceID, containerPath string) Resource {
	r := NewReservedScalar("disk", value, role)
	r.Disk = &Disk{PersistenceID: persistenceID, ContainerPath: containerPath}
	return r
}

// NewSharedVolume builds a shareable persistent volume.
func NewSharedVolume(value float64, role, persistenceID, containerPath string) Resource {
	r := NewVolume(value, role, persistenceID, containerPath)
	r.Shared = true
	return r
}

// NewRanges builds an unreserved ranges resource.
func NewRanges(name string, ranges ...Range) Resource {
	return Resource{Name: name, Type: RANGES, Ranges: normalizeRanges(ranges)}
}

// Parse reads the compact "cpus:2;mem:1024" notation. Each entry is
// "name(role):value" where value is a scalar, "[b-e,b-e]" ranges, or
// "{a,b}" set. An omitted role means unreserved.
func Parse(s string) (Bundle, error) {
	var out Bundle
	for _, tok := range strings.Split(s, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		idx := strings.Index(tok, ":")
		if idx <= 0 {
			return nil, errors.Errorf("malformed resource %q", tok)
		}
		name, value := tok[:idx], tok[idx+1:]

		role := UnreservedRole
		if open := strings.Index(name, "("); open >= 0 {
			if !strings.HasSuffix(name, ")") {
				return nil, errors.Errorf("malformed resource name %q", name)
			}
			role = name[open+1 : len(name)-1]
			name = name[:open]
		}

		r, err := parseValue(name, value)
		if err != nil {
			return nil, err
		}
		if role != UnreservedRole {
			r.Reservation = &Reservation{Role: role}
		}
		out = out.addOne(r)
	}
	return out, nil
}

// MustParse is Parse for literals in tests; it panics on malformed input.
func MustParse(s string) Bundle {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

func parseValue(name, value string) (Resource, error) {
	switch {
	case strings.HasPrefix(value, "["):
		if !strings.HasSuffix(value, "]") {
			return Resource{}, errors.Errorf("malformed ranges %q", value)
		}
		var ranges []Range
		for _, part := range strings.Split(value[1:len(value)-1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			bounds := strings.SplitN(part, "-", 2)
			if len(bounds) != 2 {
				return Resource{}, errors.Errorf("malformed range %q", part)
			}
			begin, err := strconv.ParseUint(strings.TrimSpace(bounds[0]), 10, 64)
			if err != nil {
				return Resource{}, errors.Wrapf(err, "malformed range %q", part)
			}
			end, err := strconv.ParseUint(strings.TrimSpace(bounds[1]), 10, 64)
			if err != nil {
				return Resource{}, errors.Wrapf(err, "malformed range %q", part)
			}
			ranges = append(ranges, Range{Begin: begin, End: end})
		}
		return NewRanges(name, ranges...), nil

	case strings.HasPrefix(value, "{"):
		if !strings.HasSuffix(value, "}") {
			return Resource{}, errors.Errorf("malformed set %q", value)
		}
		var items []string
		for _, part := range strings.Split(value[1:len(value)-1], ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		return Resource{Name: name, Type: SET, Set: items}, nil

	default:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Resource{}, errors.Wrapf(err, "malformed scalar %q", value)
		}
		return NewScalar(name, v), nil
	}
}
