package kvtable

import "encoding/binary"

// BlockBuilder generates blocks where keys are prefix-compressed:
// each key drops the prefix it shares with the previous one, and once
// every BlockRestartInterval keys the full key is stored instead.
// These "restart points" are collected in a trailing array and allow
// binary search within a block. Values are stored as-is immediately
// after their key.
//
// An entry for a particular key-value pair has the form:
//
//	shared_bytes:   varint32
//	unshared_bytes: varint32
//	value_length:   varint32
//	key_delta:      uint8[unshared_bytes]
//	value:          uint8[value_length]
//
// shared_bytes == 0 for restart points.
//
// The trailer of the block has the form:
//
//	restarts:     uint32[num_restarts]
//	num_restarts: uint32
//
// restarts[i] contains the offset within the block of the ith restart
// point.
type BlockBuilder struct {
	restartInterval int

	buf      []byte
	restarts []uint32
	counter  int    // entries since the last restart
	lastKey  []byte // kept whole although stored delta-compressed
	finished bool
}

// NewBlockBuilder returns a builder emitting a restart point every
// restartInterval entries.
// REQUIRES: restartInterval >= 1
func NewBlockBuilder(restartInterval int) *BlockBuilder {
	return &BlockBuilder{
		restartInterval: restartInterval,
		restarts:        []uint32{0}, // first restart point is at offset 0
	}
}

// Reset restores the builder to its initial empty state.
func (b *BlockBuilder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// Empty reports whether no entries have been added since the last
// Reset.
func (b *BlockBuilder) Empty() bool { return len(b.buf) == 0 }

// CurrentSizeEstimate returns the size of the block being built, as
// if Finish were called now.
func (b *BlockBuilder) CurrentSizeEstimate() int {
	return len(b.buf) + // raw entry data
		len(b.restarts)*4 + // restart array
		4 // restart array length
}

// Add appends an entry.
// REQUIRES: Finish has not been called since the last Reset
// REQUIRES: key is greater than any previously added key
func (b *BlockBuilder) Add(key, value []byte) {
	if b.finished {
		panic("kvtable: block add after finish")
	}

	shared := 0
	if b.counter < b.restartInterval {
		// See how much sharing to do with the previous key
		n := len(b.lastKey)
		if len(key) < n {
			n = len(key)
		}
		for shared < n && b.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		// Restart compression
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}

	b.buf = binary.AppendUvarint(b.buf, uint64(shared))
	b.buf = binary.AppendUvarint(b.buf, uint64(len(key)-shared))
	b.buf = binary.AppendUvarint(b.buf, uint64(len(value)))
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	// lastKey already holds the shared prefix, append only the rest to
	// keep memory traffic minimal.
	b.lastKey = append(b.lastKey[:shared], key[shared:]...)
	b.counter++
}

// Finish appends the restart array and returns a slice over the block
// contents, valid until the next Reset.
func (b *BlockBuilder) Finish() []byte {
	for _, off := range b.restarts {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, off)
	}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(b.restarts)))
	b.finished = true
	return b.buf
}
