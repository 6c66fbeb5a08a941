package kvtable

import (
	"sync/atomic"

	"github.com/zeebo/pcg"
)

// Thread safety
// -------------
//
// Insert requires external synchronization, most likely a mutex.
// Reads require a guarantee that the skip list will not be garbage
// collected while the read is in progress. Apart from that, reads
// progress without any locking.
//
// Invariants:
//
// (1) Nodes are never removed until the whole list is dropped. Key
// bytes are owned by the arena and remain valid for its lifetime.
//
// (2) The contents of a node except for its tower are immutable after
// the node has been linked. Only Insert modifies the list, and it is
// careful to initialize a node's own links before publishing it.

const (
	skipListMaxHeight = 12
	skipListBranching = 4
)

type skipListNode struct {
	key []byte // arena-owned, immutable once linked

	// tower[i] is the forward link at level i. Its length equals the
	// node's sampled height. Links are atomic: Go's atomics are
	// sequentially consistent, which covers both the acquire loads and
	// release stores the traversal and publish steps rely on.
	tower []atomic.Pointer[skipListNode]
}

func (n *skipListNode) next(level int) *skipListNode {
	return n.tower[level].Load()
}

func (n *skipListNode) setNext(level int, x *skipListNode) {
	n.tower[level].Store(x)
}

// SkipList is an ordered set of keys supporting one concurrent writer
// and any number of lock-free readers.
type SkipList struct {
	cmp   Comparer
	arena *Arena
	head  *skipListNode // sentinel of maximal height, key is nil

	// Height of the entire list. Modified only by Insert, read racily
	// by readers; stale values are fine.
	height atomic.Int32

	// Read/written only by Insert.
	rnd pcg.T
}

// NewSkipList returns an empty list ordering keys with cmp and copying
// them into arena, which must outlive the list.
func NewSkipList(cmp Comparer, arena *Arena) *SkipList {
	head := &skipListNode{
		tower: make([]atomic.Pointer[skipListNode], skipListMaxHeight),
	}
	l := &SkipList{
		cmp:   cmp,
		arena: arena,
		head:  head,
		rnd:   pcg.New(0xdeadbeef),
	}
	l.height.Store(1)
	return l
}

// Insert adds key to the list.
// REQUIRES: nothing that compares equal to key is currently in the
// list. Duplicate inserts are a programming error and panic.
func (l *SkipList) Insert(key []byte) {
	var prev [skipListMaxHeight]*skipListNode
	x := l.findGreaterOrEqual(key, &prev)

	if x != nil && l.cmp.Compare(x.key, key) == 0 {
		panic("kvtable: duplicate skip list insert")
	}

	height := l.randomHeight()
	if max := int(l.height.Load()); height > max {
		for i := max; i < height; i++ {
			prev[i] = l.head
		}
		// It is ok to mutate the height without synchronizing with
		// concurrent readers. A reader that observes the new value
		// will see either nil in the head's new levels, dropping
		// straight down since nil sorts after all keys, or the new
		// node once it is published below.
		l.height.Store(int32(height))
	}

	x = l.newNode(key, height)
	for i := 0; i < height; i++ {
		// Set the node's own link first; the node is unreachable until
		// prev[i] is updated to publish it.
		x.setNext(i, prev[i].next(i))
		prev[i].setNext(i, x)
	}
}

// Contains reports whether an entry comparing equal to key is in the
// list.
func (l *SkipList) Contains(key []byte) bool {
	x := l.findGreaterOrEqual(key, nil)
	return x != nil && l.cmp.Compare(x.key, key) == 0
}

func (l *SkipList) newNode(key []byte, height int) *skipListNode {
	kb := l.arena.AllocateAligned(len(key))
	copy(kb, key)
	return &skipListNode{
		key:   kb,
		tower: make([]atomic.Pointer[skipListNode], height),
	}
}

func (l *SkipList) randomHeight() int {
	// Increase height with probability 1 in skipListBranching
	height := 1
	for height < skipListMaxHeight && l.rnd.Uint32()%skipListBranching == 0 {
		height++
	}
	return height
}

// keyIsAfterNode reports whether key is greater than the key stored
// in n. A nil n acts as +infinity.
func (l *SkipList) keyIsAfterNode(key []byte, n *skipListNode) bool {
	return n != nil && l.cmp.Compare(n.key, key) < 0
}

// findGreaterOrEqual returns the earliest node at or after key, or nil
// if there is no such node. If prev is non-nil it is filled with the
// predecessor at every level.
func (l *SkipList) findGreaterOrEqual(key []byte, prev *[skipListMaxHeight]*skipListNode) *skipListNode {
	x := l.head
	level := int(l.height.Load()) - 1
	for {
		next := x.next(level)
		if l.keyIsAfterNode(key, next) {
			x = next
		} else {
			if prev != nil {
				prev[level] = x
			}
			if level == 0 {
				return next
			}
			level--
		}
	}
}

// findLessThan returns the latest node before key, or the head
// sentinel if there is none.
func (l *SkipList) findLessThan(key []byte) *skipListNode {
	x := l.head
	level := int(l.height.Load()) - 1
	for {
		next := x.next(level)
		if next == nil || l.cmp.Compare(next.key, key) >= 0 {
			if level == 0 {
				return x
			}
			level--
		} else {
			x = next
		}
	}
}

// findLast returns the last node, or the head sentinel if the list is
// empty. It walks down and right instead of scanning level 0.
func (l *SkipList) findLast() *skipListNode {
	x := l.head
	level := int(l.height.Load()) - 1
	for {
		next := x.next(level)
		if next == nil {
			if level == 0 {
				return x
			}
			level--
		} else {
			x = next
		}
	}
}

// --------------------------------------------------------------------

// SkipListIterator iterates over the contents of a skip list. The
// zero position is invalid; position it with Seek, SeekToFirst or
// SeekToLast first.
type SkipListIterator struct {
	list *SkipList
	node *skipListNode
}

// Iterator returns a new, unpositioned iterator over the list.
func (l *SkipList) Iterator() *SkipListIterator {
	return &SkipListIterator{list: l}
}

// Valid reports whether the iterator is positioned at a node.
func (it *SkipListIterator) Valid() bool { return it.node != nil }

// Key returns the key at the current position.
// REQUIRES: Valid()
func (it *SkipListIterator) Key() []byte { return it.node.key }

// Next advances to the next position.
// REQUIRES: Valid()
func (it *SkipListIterator) Next() {
	it.node = it.node.next(0)
}

// Prev retreats to the previous position, invalidating the iterator
// at the front of the list. Instead of explicit back links we search
// for the last node before the current key.
// REQUIRES: Valid()
func (it *SkipListIterator) Prev() {
	it.node = it.list.findLessThan(it.node.key)
	if it.node == it.list.head {
		it.node = nil
	}
}

// Seek positions the iterator at the first entry with a key >= target.
func (it *SkipListIterator) Seek(target []byte) {
	it.node = it.list.findGreaterOrEqual(target, nil)
}

// SeekToFirst positions the iterator at the first entry, leaving it
// valid iff the list is not empty.
func (it *SkipListIterator) SeekToFirst() {
	it.node = it.list.head.next(0)
}

// SeekToLast positions the iterator at the last entry, leaving it
// valid iff the list is not empty.
func (it *SkipListIterator) SeekToLast() {
	it.node = it.list.findLast()
	if it.node == it.list.head {
		it.node = nil
	}
}
