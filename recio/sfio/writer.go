package sfio

import (
	"encoding/binary"
	"io"

	"github.com/flowseam/flowseam/flowrec"
	"github.com/pierrec/lz4/v4"
)

type WriterOpts struct {
	Compress bool
	// FrameThresh is the uncompressed bytes buffered per frame when
	// compressing; zero means DefaultFrameThresh.
	FrameThresh int
}

// Writer writes a record stream, owning the underlying WriteCloser.
// The header goes out with the first record or at Close, so even an
// empty stream produces a well-formed file.
type Writer struct {
	writer      io.WriteCloser
	opts        WriterOpts
	compressor  lz4.Compressor
	buf         []byte
	zbuf        []byte
	wroteHeader bool
	closed      bool
}

func NewWriter(w io.WriteCloser, opts WriterOpts) *Writer {
	if opts.FrameThresh == 0 {
		opts.FrameThresh = DefaultFrameThresh
	}
	return &Writer{writer: w, opts: opts}
}

func (w *Writer) Write(rec *flowrec.Record) error {
	if err := w.ensureHeader(); err != nil {
		return err
	}
	w.buf = append(w.buf, rec[:]...)
	if len(w.buf) >= w.opts.FrameThresh {
		return w.flush()
	}
	return nil
}

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.ensureHeader()
	if err == nil {
		err = w.flush()
	}
	if closeErr := w.writer.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (w *Writer) ensureHeader() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	hdr[4] = Version
	hdr[5] = CompressionNone
	if w.opts.Compress {
		hdr[5] = CompressionLZ4
	}
	binary.LittleEndian.PutUint16(hdr[6:8], flowrec.Size)
	_, err := w.writer.Write(hdr[:])
	return err
}

// flush writes the buffered records as one frame, or as bare bytes
// when not compressing.
func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	body := w.buf
	w.buf = w.buf[:0]
	if !w.opts.Compress {
		_, err := w.writer.Write(body)
		return err
	}
	// Compress into one byte less than the input so compression fails
	// unless it actually shrinks the frame.
	if cap(w.zbuf) < len(body)-1 {
		w.zbuf = make([]byte, len(body)-1)
	}
	zlen, err := w.compressor.CompressBlock(body, w.zbuf[:len(body)-1])
	if err != nil && err != lz4.ErrInvalidSourceShortBuffer {
		return err
	}
	payload := body
	if zlen > 0 {
		payload = w.zbuf[:zlen]
	} else {
		zlen = 0
	}
	hdr := binary.AppendUvarint(nil, uint64(zlen))
	hdr = binary.AppendUvarint(hdr, uint64(len(body)))
	if _, err := w.writer.Write(hdr); err != nil {
		return err
	}
	_, err = w.writer.Write(payload)
	return err
}
