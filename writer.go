package kvtable

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Options define table building options.
type Options struct {
	// Comparer defines the key order within the table.
	// Default: Bytewise.
	Comparer Comparer

	// BlockSize is the minimum uncompressed size in bytes of each
	// table block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart
	// points for delta encoding of keys.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression

	// FilterPolicy, when set, adds a filter block to the table so that
	// readers can skip data blocks that cannot contain a key.
	// Default: none.
	FilterPolicy FilterPolicy
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.Comparer == nil {
		oo.Comparer = Bytewise
	}
	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}

	return &oo
}

// flusher is implemented by outputs that buffer, e.g. bufio.Writer.
type flusher interface {
	Flush() error
}

// Writer builds a table from key/value pairs added in ascending key
// order. It owns its output exclusively until Finish or Abandon.
//
// Errors are sticky: after the first failed write, Add, Flush and
// Finish write nothing more and return the same error. Abandon and
// ChangeOptions do not consult it.
type Writer struct {
	w io.Writer
	o *Options

	offset  uint64
	err     error
	closed  bool // either Finish or Abandon has been called
	entries uint64

	dataBlock  *BlockBuilder
	indexBlock *BlockBuilder
	filter     *FilterBlockBuilder
	lastKey    []byte

	// We do not emit the index entry for a block until we have seen
	// the first key of the next one. This allows shorter separator
	// keys in the index: with a block boundary between "the quick
	// brown fox" and "the who", "the r" can serve as the index key.
	//
	// Invariant: pendingIndexEntry is true only if dataBlock is empty.
	pendingIndexEntry bool
	pendingHandle     blockHandle

	snp []byte // snappy buffer
	tmp []byte // scratch buffer
}

// NewWriter wraps an output and returns a table Writer.
func NewWriter(w io.Writer, o *Options) *Writer {
	o = o.norm()
	tw := &Writer{
		w: w,
		o: o,

		dataBlock: NewBlockBuilder(o.BlockRestartInterval),
		// Index entries rarely share prefixes worth delta-encoding,
		// restart on every entry.
		indexBlock: NewBlockBuilder(1),
		tmp:        make([]byte, 0, footerLen),
	}
	if o.FilterPolicy != nil {
		tw.filter = NewFilterBlockBuilder(o.FilterPolicy)
		tw.filter.StartBlock(0)
	}
	return tw
}

// Add appends a key/value pair.
// REQUIRES: key is greater than any previously added key
func (w *Writer) Add(key, value []byte) error {
	if w.closed {
		return errClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.entries > 0 && w.o.Comparer.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("kvtable: attempted an out-of-order add, %q must be > %q", key, w.lastKey)
	}

	if w.pendingIndexEntry {
		sep := w.o.Comparer.Separator(w.lastKey, key)
		w.indexBlock.Add(sep, w.pendingHandle.append(w.tmp[:0]))
		w.pendingIndexEntry = false
	}

	if w.filter != nil {
		w.filter.AddKey(key)
	}

	w.lastKey = append(w.lastKey[:0], key...)
	w.entries++
	w.dataBlock.Add(key, value)

	if w.dataBlock.CurrentSizeEstimate() >= w.o.BlockSize {
		return w.Flush()
	}
	return nil
}

// Flush forces the buffered data block out to the file. Most clients
// should not need to call this, Add flushes automatically once a
// block fills up.
func (w *Writer) Flush() error {
	if w.closed {
		return errClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.dataBlock.Empty() {
		return nil
	}

	w.pendingHandle, w.err = w.writeBlock(w.dataBlock)
	if w.err != nil {
		return w.err
	}
	w.pendingIndexEntry = true

	if f, ok := w.w.(flusher); ok {
		if w.err = f.Flush(); w.err != nil {
			return w.err
		}
	}
	if w.filter != nil {
		w.filter.StartBlock(w.offset)
	}
	return nil
}

// Finish flushes outstanding data and appends the filter block, the
// meta index, the index and the footer. The Writer must not be used
// afterwards.
func (w *Writer) Finish() error {
	if w.closed {
		return errClosed
	}
	_ = w.Flush() // a failure is latched in w.err and skips the rest
	w.closed = true

	// Write filter block
	var filterHandle blockHandle
	if w.filter != nil && w.err == nil {
		filterHandle, w.err = w.writeRawBlock(w.filter.Finish(), blockNoCompression)
	}

	// Write metaindex block
	var metaindexHandle blockHandle
	if w.err == nil {
		metaindex := NewBlockBuilder(w.o.BlockRestartInterval)
		if w.filter != nil {
			// Map "filter.<Name>" to the location of the filter data
			key := "filter." + w.o.FilterPolicy.Name()
			metaindex.Add([]byte(key), filterHandle.append(w.tmp[:0]))
		}
		metaindexHandle, w.err = w.writeBlock(metaindex)
	}

	// Write index block
	var indexHandle blockHandle
	if w.err == nil {
		if w.pendingIndexEntry {
			succ := w.o.Comparer.Successor(w.lastKey)
			w.indexBlock.Add(succ, w.pendingHandle.append(w.tmp[:0]))
			w.pendingIndexEntry = false
		}
		indexHandle, w.err = w.writeBlock(w.indexBlock)
	}

	// Write footer
	if w.err == nil {
		footer := appendFooter(w.tmp[:0], metaindexHandle, indexHandle)
		if w.err = w.writeRaw(footer); w.err == nil {
			w.offset += uint64(len(footer))
		}
	}
	return w.err
}

// Abandon terminates the build without any further writes; the caller
// is responsible for discarding the partially written file. The
// Writer must not be used afterwards.
func (w *Writer) Abandon() error {
	if w.closed {
		return errClosed
	}
	w.closed = true
	return nil
}

// ChangeOptions adjusts the options for the remainder of the build.
// The comparer cannot change mid-table; attempting to is an error.
func (w *Writer) ChangeOptions(o *Options) error {
	o = o.norm()
	if o.Comparer.Name() != w.o.Comparer.Name() {
		return errComparerChanged
	}
	w.o = o
	w.dataBlock.restartInterval = o.BlockRestartInterval
	return nil
}

// NumEntries returns the number of key/value pairs added so far.
func (w *Writer) NumEntries() uint64 { return w.entries }

// FileSize returns the number of bytes committed to the output so
// far; after a successful Finish it is the size of the table file.
func (w *Writer) FileSize() uint64 { return w.offset }

// Err returns the first error encountered while writing, if any.
func (w *Writer) Err() error { return w.err }

// writeBlock finishes block, compresses it if configured and
// worthwhile, writes it out and resets the builder.
func (w *Writer) writeBlock(block *BlockBuilder) (blockHandle, error) {
	raw := block.Finish()

	contents := raw
	typ := byte(blockNoCompression)
	if w.o.Compression == SnappyCompression {
		w.snp = snappy.Encode(w.snp[:cap(w.snp)], raw)
		if len(w.snp) < len(raw)-len(raw)/8 {
			// Compressed by more than 12.5%
			contents, typ = w.snp, blockSnappyCompression
		}
	}

	handle, err := w.writeRawBlock(contents, typ)
	w.snp = w.snp[:0]
	block.Reset()
	return handle, err
}

// writeRawBlock appends contents followed by the 5-byte trailer. The
// file offset only advances once both writes succeed, so FileSize
// tracks committed bytes only.
func (w *Writer) writeRawBlock(contents []byte, typ byte) (blockHandle, error) {
	handle := blockHandle{Offset: w.offset, Size: uint64(len(contents))}

	if err := w.writeRaw(contents); err != nil {
		return handle, err
	}

	crc := maskedCRC(contents, typ)
	trailer := append(w.tmp[:0], typ,
		byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
	if err := w.writeRaw(trailer); err != nil {
		return handle, err
	}

	w.offset += uint64(len(contents)) + blockTrailerLen
	return handle, nil
}

func (w *Writer) writeRaw(p []byte) error {
	_, err := w.w.Write(p)
	return err
}
