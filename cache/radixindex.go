package cache

import "github.com/armon/go-radix"

// relationIndex is a typed wrapper around a radix.Tree keyed by
// relation name. It stores an ordered, identity-unique slice of
// entry indexes per name.
type relationIndex struct {
	t *radix.Tree
}

func newRelationIndex() relationIndex {
	return relationIndex{t: radix.New()}
}

func (idx relationIndex) get(name string) ([]int, bool) {
	if v, ok := idx.t.Get(name); ok {
		return v.([]int), true
	}
	return nil, false
}

func (idx relationIndex) append(name string, relIdx int) {
	if v, ok := idx.t.Get(name); ok {
		idx.t.Insert(name, append(v.([]int), relIdx))
		return
	}
	idx.t.Insert(name, []int{relIdx})
}

// walk visits every name in the index, in radix order.
func (idx relationIndex) walk(fn func(name string, ids []int)) {
	idx.t.Walk(func(name string, v interface{}) bool {
		fn(name, v.([]int))
		return false
	})
}
