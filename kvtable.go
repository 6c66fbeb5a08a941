package kvtable

import "errors"

// tableMagic terminates every table file, little-endian.
const tableMagic = uint64(0xdb4775248b80fb57)

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
)

const (
	// blockTrailerLen is 1-byte compression type + 4-byte masked CRC.
	blockTrailerLen = 5

	// footerLen is two max-length block handles, zero-padded, plus magic.
	footerLen = 2*maxBlockHandleLen + 8
)

var (
	errClosed          = errors.New("kvtable: is closed")
	errComparerChanged = errors.New("kvtable: comparer must not change while building a table")
)

// --------------------------------------------------------------------

// Compression is the compression codec applied to table blocks.
//
// A block that does not shrink by at least 12.5% under the requested
// codec is silently stored uncompressed; this never surfaces as an
// error.
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)
