package sorter

import "sort"

type lessFunc func(p1, p2 interface{}) bool

// multiKeySorter sorts a list of items by an ordered chain of less
// functions; later functions break ties left by earlier ones.
type multiKeySorter struct {
	list []interface{}
	less []lessFunc
}

// orderedBy returns a multiKeySorter that sorts using the less functions
// in order. Call its sort method to sort a list.
func orderedBy(less ...lessFunc) *multiKeySorter {
	return &multiKeySorter{less: less}
}

func (ms *multiKeySorter) sort(list []interface{}) {
	ms.list = list
	sort.Stable(ms)
}

func (ms *multiKeySorter) Len() int { return len(ms.list) }

func (ms *multiKeySorter) Swap(i, j int) {
	ms.list[i], ms.list[j] = ms.list[j], ms.list[i]
}

// Less loops along the less functions until one discriminates between the
// two items; the last function decides remaining ties.
func (ms *multiKeySorter) Less(i, j int) bool {
	p, q := ms.list[i], ms.list[j]
	var k int
	for k = 0; k < len(ms.less)-1; k++ {
		less := ms.less[k]
		switch {
		case less(p, q):
			return true
		case less(q, p):
			return false
		}
		// p == q under this key; try the next one.
	}
	return ms.less[k](p, q)
}
