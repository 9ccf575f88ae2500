package streams

import "errors"

// MaxUint64 is the highest representable uint64, used both as a key-space
// bound (MaxKey) and as the all-ones source of the low-bit mask that
// getChildIdx in radix.go builds.
const MaxUint64 = ^uint64(0)

// Stream is an append-only, strictly-increasing sequence of (Key, value)
// entries backed by the radix tree in radix.go. The zero value is an empty,
// ready-to-use stream.
//
// Stream is deliberately cheap to copy: root is a pointer, so copies share
// the same underlying tree, and LastEntry travels with the copy for callers
// (like NewKey) that only need to read the current top entry.
type Stream struct {
	root      *RxNode
	LastEntry Entry
}

// Put inserts val under key, which must be strictly greater than every key
// already in the stream (including the very first insert, since the zero
// value's LastEntry.Key is {0,0} and 0-0 is a reserved id that can never be
// inserted).
func (s *Stream) Put(key Key, val any) error {
	if !key.GreaterThan(s.LastEntry.Key) {
		return errors.New(
			"ID specified in XADD is equal or smaller than the target stream top item",
		)
	}
	if s.root == nil {
		s.root = &RxNode{}
	}
	node := s.root.create(key.internalRepr())
	entry := Entry{Key: key, Val: val}
	node.entry = &entry
	s.LastEntry = entry
	return nil
}

// Search returns the value stored under key, if any.
func (s Stream) Search(key Key) (any, bool) {
	if s.root == nil {
		return nil, false
	}
	node, failIdx, _ := s.root.longestCommonPrefix(key.internalRepr())
	if failIdx != -1 || node.entry == nil {
		return nil, false
	}
	return node.entry.Val, true
}

// Range returns every entry with a key in [from, to], ordered lowest to
// highest. The result is empty when from is greater than to.
func (s Stream) Range(from, to Key) []Entry {
	if s.root == nil || to.LesserThan(from) {
		return []Entry{}
	}
	return s.root.rangeEntries(from.internalRepr(), to.internalRepr())
}
