package kvtable

import "encoding/binary"

// Generate a new filter every 2KiB of table data
const (
	filterBaseLg = 11
	filterBase   = 1 << filterBaseLg
)

// FilterBlockBuilder accumulates keys and emits one filter per 2KiB
// window of the table file. The block it produces has the layout:
//
//	filter 1 | ... | filter n | offset 1 (4 bytes) | ... | offset n (4 bytes) | array offset (4 bytes) | base lg (1 byte)
//
// where offset i is the position of filter i within the block and the
// array offset is the position of the offset array itself.
type FilterBlockBuilder struct {
	policy  FilterPolicy
	keys    []byte   // flattened key contents
	starts  []int    // start of each key within keys
	offsets []uint32 // per-filter offsets within result
	result  []byte
	tmpKeys [][]byte // reused by generate
}

// NewFilterBlockBuilder returns a builder generating filters with
// policy.
func NewFilterBlockBuilder(policy FilterPolicy) *FilterBlockBuilder {
	return &FilterBlockBuilder{policy: policy}
}

// StartBlock declares that the next data block begins at blockOffset,
// emitting filters for every 2KiB window ending at or before it.
// Offsets must be passed in non-decreasing order.
func (b *FilterBlockBuilder) StartBlock(blockOffset uint64) {
	index := blockOffset / filterBase
	for index > uint64(len(b.offsets)) {
		b.generate()
	}
}

// AddKey registers a key with the window currently being accumulated.
func (b *FilterBlockBuilder) AddKey(key []byte) {
	b.starts = append(b.starts, len(b.keys))
	b.keys = append(b.keys, key...)
}

// Finish emits any pending filter followed by the offset array and
// returns the completed block, valid until the builder is reused.
func (b *FilterBlockBuilder) Finish() []byte {
	if len(b.starts) > 0 {
		b.generate()
	}

	// Append array of per-filter offsets
	arrayOffset := uint32(len(b.result))
	for _, off := range b.offsets {
		b.result = binary.LittleEndian.AppendUint32(b.result, off)
	}
	b.result = binary.LittleEndian.AppendUint32(b.result, arrayOffset)
	b.result = append(b.result, filterBaseLg) // save encoding parameter
	return b.result
}

func (b *FilterBlockBuilder) generate() {
	if len(b.starts) == 0 {
		// Fast path if there are no keys for this filter
		b.offsets = append(b.offsets, uint32(len(b.result)))
		return
	}

	// Make list of keys from flattened key structure
	b.starts = append(b.starts, len(b.keys)) // simplify length computation
	b.tmpKeys = b.tmpKeys[:0]
	for i := 0; i+1 < len(b.starts); i++ {
		b.tmpKeys = append(b.tmpKeys, b.keys[b.starts[i]:b.starts[i+1]])
	}

	// Generate filter for current set of keys and append to result.
	b.offsets = append(b.offsets, uint32(len(b.result)))
	b.result = b.policy.AppendFilter(b.result, b.tmpKeys)

	b.keys = b.keys[:0]
	b.starts = b.starts[:0]
}

// --------------------------------------------------------------------

// FilterBlockReader probes a filter block produced by
// FilterBlockBuilder.
type FilterBlockReader struct {
	policy FilterPolicy
	data   []byte // whole filter block
	offset []byte // offset array within data
	num    int    // entries in the offset array
	baseLg uint
}

// NewFilterBlockReader wraps contents, which remains owned by the
// caller. Malformed contents yield a reader that matches everything.
func NewFilterBlockReader(policy FilterPolicy, contents []byte) *FilterBlockReader {
	r := &FilterBlockReader{policy: policy}

	n := len(contents)
	if n < 5 { // 1 byte base lg + 4 bytes array offset
		return r
	}
	arrayOffset := binary.LittleEndian.Uint32(contents[n-5:])
	if int(arrayOffset) > n-5 {
		return r
	}

	r.baseLg = uint(contents[n-1])
	r.data = contents
	r.offset = contents[arrayOffset:]
	r.num = (n - 5 - int(arrayOffset)) / 4
	return r
}

// KeyMayMatch reports whether the filter for the window containing
// blockOffset may contain key. Errors are treated as potential
// matches; an empty filter matches nothing.
func (r *FilterBlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	index := int(blockOffset >> r.baseLg)
	if index < r.num {
		start := binary.LittleEndian.Uint32(r.offset[index*4:])
		limit := binary.LittleEndian.Uint32(r.offset[index*4+4:])
		if start == limit {
			// Empty filters do not match any keys
			return false
		}
		if start < limit && limit <= uint32(len(r.data)-len(r.offset)) {
			return r.policy.KeyMayMatch(key, r.data[start:limit])
		}
	}
	return true
}
