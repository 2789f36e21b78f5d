package pgproto

import "io"

// chunkReader is an io.Reader wrapper that minimizes IO reads and memory
// allocations. It reads as much as will fit in the current buffer in a
// single call regardless of how large a read is actually requested. The
// memory returned via Next is only valid until the next call to Next.
type chunkReader struct {
	r io.Reader

	buf    []byte
	rp, wp int // buf read position and write position
}

func newChunkReader(r io.Reader, bufSize int) *chunkReader {
	if bufSize <= 0 {
		// PostgreSQL has an 8KB send buffer, so there is nothing to gain
		// from a larger default.
		bufSize = 8192
	}

	return &chunkReader{
		r:   r,
		buf: make([]byte, bufSize),
	}
}

// Next returns buf filled with the next n bytes. buf is only valid until
// the next call of Next. If an error occurs, buf will be nil.
func (r *chunkReader) Next(n int) (buf []byte, err error) {
	// Reset the buffer if it is empty.
	if r.rp == r.wp {
		r.rp = 0
		r.wp = 0
	}

	// n bytes already in buf.
	if (r.wp - r.rp) >= n {
		buf = r.buf[r.rp : r.rp+n : r.rp+n]
		r.rp += n
		return buf, nil
	}

	// buf is smaller than the requested number of bytes.
	if len(r.buf) < n {
		newBuf := make([]byte, n)
		r.wp = copy(newBuf, r.buf[r.rp:r.wp])
		r.rp = 0
		r.buf = newBuf
	}

	// buf is large enough, but the filled area must be shifted to the start
	// to make enough contiguous space.
	minReadCount := n - (r.wp - r.rp)
	if (len(r.buf) - r.wp) < minReadCount {
		r.wp = copy(r.buf, r.buf[r.rp:r.wp])
		r.rp = 0
	}

	readBytesCount, err := io.ReadAtLeast(r.r, r.buf[r.wp:], minReadCount)
	r.wp += readBytesCount
	if err != nil {
		return nil, err
	}

	buf = r.buf[r.rp : r.rp+n : r.rp+n]
	r.rp += n
	return buf, nil
}
