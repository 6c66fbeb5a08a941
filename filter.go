package kvtable

import farm "github.com/dgryski/go-farm"

// FilterPolicy builds and probes probabilistic per-block filters.
// AppendFilter must append a single filter summarising keys to dst;
// KeyMayMatch probes a filter produced by the same policy and may
// return false positives but never false negatives.
type FilterPolicy interface {
	// Name identifies the policy; it is recorded in the table meta
	// index as "filter.<name>".
	Name() string

	// AppendFilter appends a filter matching all of keys to dst and
	// returns the extended slice.
	AppendFilter(dst []byte, keys [][]byte) []byte

	// KeyMayMatch reports whether the filter may contain key.
	KeyMayMatch(key, filter []byte) bool
}

// NewBloomFilter returns a bloom filter policy with the given number
// of bits per key. 10 is a good general-purpose value, yielding a
// ~1% false positive rate.
func NewBloomFilter(bitsPerKey int) FilterPolicy {
	// We intentionally round down to reduce probing cost a little bit
	k := int(float64(bitsPerKey) * 0.69) // 0.69 =~ ln(2)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return bloomFilter{bitsPerKey: bitsPerKey, k: k}
}

type bloomFilter struct {
	bitsPerKey int
	k          int
}

func (bloomFilter) Name() string { return "kvtable.BuiltinBloomFilter" }

func (p bloomFilter) AppendFilter(dst []byte, keys [][]byte) []byte {
	bits := len(keys) * p.bitsPerKey

	// A short filter over few keys would have an excessive false
	// positive rate.
	if bits < 64 {
		bits = 64
	}
	nBytes := (bits + 7) / 8
	bits = nBytes * 8

	base := len(dst)
	dst = append(dst, make([]byte, nBytes)...)
	dst = append(dst, byte(p.k)) // remember k so we can probe later
	array := dst[base : base+nBytes]

	for _, key := range keys {
		h := bloomHash(key)
		delta := h>>17 | h<<15 // rotate right 17 bits
		for j := 0; j < p.k; j++ {
			pos := h % uint32(bits)
			array[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
	return dst
}

func (p bloomFilter) KeyMayMatch(key, filter []byte) bool {
	if len(filter) < 2 {
		return false
	}

	bits := uint32(len(filter)-1) * 8
	k := filter[len(filter)-1]
	if k > 30 {
		// Reserved for future encodings, treat as a match.
		return true
	}

	h := bloomHash(key)
	delta := h>>17 | h<<15
	for j := byte(0); j < k; j++ {
		pos := h % bits
		if filter[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

func bloomHash(key []byte) uint32 { return farm.Hash32(key) }
