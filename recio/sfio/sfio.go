// Package sfio reads and writes the flowseam binary file format, a
// fixed-size record stream with an optional lz4 block compression
// layer.  The same format carries final output files and the engine's
// spill runs.
package sfio

import "errors"

// A file starts with a fixed header followed by the record body.  An
// uncompressed body is the bare record bytes back to back.  A
// compressed body is a sequence of frames, each a uvarint compressed
// length, a uvarint uncompressed length, and the payload; a zero
// compressed length marks a stored frame whose payload is the
// uncompressed bytes.
const (
	Version    = 1
	headerSize = 16

	CompressionNone uint8 = 0
	CompressionLZ4  uint8 = 1

	// DefaultFrameThresh is the uncompressed frame size the writer
	// accumulates before compressing and flushing.
	DefaultFrameThresh = 32 * 1024

	// maxFrameSize bounds the uncompressed size a reader will accept
	// for one frame so corrupt lengths cannot drive huge allocations.
	maxFrameSize = 16 * 1024 * 1024
)

var magic = [4]byte{'S', 'F', 'L', 'W'}

var (
	ErrNotSFLW       = errors.New("sfio: not a flowseam file")
	ErrVersion       = errors.New("sfio: unsupported version")
	ErrRecordSize    = errors.New("sfio: unsupported record size")
	ErrCompression   = errors.New("sfio: unknown compression")
	ErrCorruptStream = errors.New("sfio: corrupt stream")
)
