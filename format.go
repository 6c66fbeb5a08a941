package kvtable

import (
	"encoding/binary"
	"hash/crc32"
)

// maxBlockHandleLen is the maximum encoded length of a block handle.
const maxBlockHandleLen = 2 * binary.MaxVarintLen64

// blockHandle points at a block within the table file, excluding the
// block trailer.
type blockHandle struct {
	Offset uint64
	Size   uint64
}

func (h blockHandle) append(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	dst = binary.AppendUvarint(dst, h.Size)
	return dst
}

// appendFooter encodes the fixed-size table footer: both handles,
// zero padding and the magic number.
func appendFooter(dst []byte, metaindex, index blockHandle) []byte {
	base := len(dst)
	dst = metaindex.append(dst)
	dst = index.append(dst)
	for len(dst)-base < 2*maxBlockHandleLen {
		dst = append(dst, 0)
	}
	dst = binary.LittleEndian.AppendUint64(dst, tableMagic)
	return dst
}

// --------------------------------------------------------------------

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

// maskedCRC returns the masked CRC32-C of data with the compression
// type byte appended. Masking rotates the checksum so that CRCs of
// data that itself embeds CRCs do not collide with ours.
func maskedCRC(data []byte, typ byte) uint32 {
	c := crc32.Update(0, castagnoli, data)
	c = crc32.Update(c, castagnoli, []byte{typ})
	return ((c >> 15) | (c << 17)) + crcMaskDelta
}
