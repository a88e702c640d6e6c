package resources

import "sort"

// Range is a closed integer interval, e.g. one slice of a port range.
type Range struct {
	Begin uint64
	End   uint64
}

// normalizeRanges sorts and merges adjacent or overlapping ranges.
func normalizeRanges(in []Range) []Range {
	if len(in) == 0 {
		return nil
	}
	sorted := append([]Range(nil), in...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Begin <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func rangesEqual(a, b []Range) bool {
	na, nb := normalizeRanges(a), normalizeRanges(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func rangesUnion(a, b []Range) []Range {
	return normalizeRanges(append(append([]Range(nil), a...), b...))
}

// rangesMinus removes b from a, splitting ranges as needed.
func rangesMinus(a, b []Range) []Range {
	out := normalizeRanges(a)
	for _, cut := range normalizeRanges(b) {
		var next []Range
		for _, r := range out {
			if cut.End < r.Begin || cut.Begin > r.End {
				next = append(next, r)
				continue
			}
			if cut.Begin > r.Begin {
				next = append(next, Range{Begin: r.Begin, End: cut.Begin - 1})
			}
			if cut.End < r.End {
				next = append(next, Range{Begin: cut.End + 1, End: r.End})
			}
		}
		out = next
	}
	return out
}

func rangesContain(a, b []Range) bool {
	outer := normalizeRanges(a)
	for _, r := range normalizeRanges(b) {
		covered := false
		for _, o := range outer {
			if r.Begin >= o.Begin && r.End <= o.End {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}
