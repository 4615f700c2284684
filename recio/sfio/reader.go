package sfio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flowseam/flowseam/flowrec"
	"github.com/pierrec/lz4/v4"
)

// Reader reads a record stream.  The record returned by Read is
// reused on the next call.  Close closes the underlying reader when
// it has a Close method.
type Reader struct {
	inner       io.Reader
	reader      *bufio.Reader
	compression uint8
	frame       []byte
	off         int
	zbuf        []byte
	rec         flowrec.Record
}

// NewReader reads and validates the header and returns a Reader
// positioned at the first record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrNotSFLW
		}
		return nil, err
	}
	if [4]byte{hdr[0], hdr[1], hdr[2], hdr[3]} != magic {
		return nil, ErrNotSFLW
	}
	if hdr[4] != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr[4])
	}
	compression := hdr[5]
	if compression != CompressionNone && compression != CompressionLZ4 {
		return nil, fmt.Errorf("%w: 0x%x", ErrCompression, compression)
	}
	if size := binary.LittleEndian.Uint16(hdr[6:8]); size != flowrec.Size {
		return nil, fmt.Errorf("%w: %d", ErrRecordSize, size)
	}
	return &Reader{inner: r, reader: br, compression: compression}, nil
}

func (r *Reader) Read() (*flowrec.Record, error) {
	if r.compression == CompressionNone {
		n, err := io.ReadFull(r.reader, r.rec[:])
		if err != nil {
			if err == io.EOF && n == 0 {
				return nil, nil
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("%w: truncated record", ErrCorruptStream)
			}
			return nil, err
		}
		return &r.rec, nil
	}
	if r.off == len(r.frame) {
		ok, err := r.readFrame()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	copy(r.rec[:], r.frame[r.off:])
	r.off += flowrec.Size
	return &r.rec, nil
}

// readFrame loads and decompresses the next frame, reporting false at
// a clean end of stream.
func (r *Reader) readFrame() (bool, error) {
	if _, err := r.reader.Peek(1); err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	zlen, err := binary.ReadUvarint(r.reader)
	if err != nil {
		return false, fmt.Errorf("%w: bad frame length", ErrCorruptStream)
	}
	ulen, err := binary.ReadUvarint(r.reader)
	if err != nil {
		return false, fmt.Errorf("%w: bad frame length", ErrCorruptStream)
	}
	if ulen == 0 || ulen > maxFrameSize || ulen%flowrec.Size != 0 || zlen >= ulen {
		return false, fmt.Errorf("%w: frame of %d compressed, %d uncompressed bytes", ErrCorruptStream, zlen, ulen)
	}
	if uint64(cap(r.frame)) < ulen {
		r.frame = make([]byte, ulen)
	}
	r.frame = r.frame[:ulen]
	r.off = 0
	if zlen == 0 {
		if _, err := io.ReadFull(r.reader, r.frame); err != nil {
			return false, fmt.Errorf("%w: truncated frame", ErrCorruptStream)
		}
		return true, nil
	}
	if uint64(cap(r.zbuf)) < zlen {
		r.zbuf = make([]byte, zlen)
	}
	r.zbuf = r.zbuf[:zlen]
	if _, err := io.ReadFull(r.reader, r.zbuf); err != nil {
		return false, fmt.Errorf("%w: truncated frame", ErrCorruptStream)
	}
	n, err := lz4.UncompressBlock(r.zbuf, r.frame)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrCorruptStream, err)
	}
	if uint64(n) != ulen {
		return false, fmt.Errorf("%w: got %d uncompressed bytes, expected %d", ErrCorruptStream, n, ulen)
	}
	return true, nil
}

// Compression reports the stream's compression, CompressionNone or
// CompressionLZ4.
func (r *Reader) Compression() uint8 {
	return r.compression
}

func (r *Reader) Close() error {
	if closer, ok := r.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
