package combine

import (
	"fmt"

	"github.com/flowseam/flowseam/flowrec"
)

const (
	// numChunks is how many growth steps divide the memory budget, so
	// a sort that needs little memory never allocates much.
	numChunks = 6
	// maxChunkBytes caps a single growth step.
	maxChunkBytes = 1 << 30
)

// MinInCoreRecords is the smallest record buffer the engine will run
// with.  When even that cannot be allocated, sorting in core is
// pointless and the engine fails instead of thrashing.
var MinInCoreRecords = 1000

type allocFn func(n int) []flowrec.Record

func makeRecords(n int) []flowrec.Record {
	return make([]flowrec.Record, n)
}

// recordBuffer is the engine's in-core accumulation buffer.  The slab
// grows in chunk steps toward maxRecs; a failed growth caps the
// capacity at whatever is already allocated.  All state is explicit so
// the grow and cap transitions are directly testable.
type recordBuffer struct {
	recs      []flowrec.Record
	maxRecs   int
	chunkRecs int
	capped    bool
	alloc     allocFn
}

func newRecordBuffer(memMaxBytes int64, alloc allocFn) (*recordBuffer, error) {
	if alloc == nil {
		alloc = makeRecords
	}
	maxRecs := int(memMaxBytes / flowrec.Size)
	if maxRecs < 1 {
		return nil, fmt.Errorf("memory budget of %d bytes cannot hold a record", memMaxBytes)
	}
	chunks := numChunks
	if memMaxBytes/int64(chunks) > maxChunkBytes {
		chunks = int(memMaxBytes / maxChunkBytes)
	}
	chunkRecs := maxRecs / chunks
	if chunkRecs < 1 {
		chunkRecs = 1
	}
	var slab []flowrec.Record
	for {
		if slab = alloc(chunkRecs); slab != nil {
			break
		}
		// Retry with more, smaller chunks until the chunk drops below
		// the useful minimum.
		chunks++
		chunkRecs = maxRecs / chunks
		if chunkRecs < MinInCoreRecords {
			return nil, fmt.Errorf("cannot allocate a record buffer of even %d records", MinInCoreRecords)
		}
	}
	return &recordBuffer{
		recs:      slab[:0],
		maxRecs:   maxRecs,
		chunkRecs: chunkRecs,
		alloc:     alloc,
	}, nil
}

// room grows the slab when it is full and reports whether another
// record fits.  Once a growth allocation fails, the capacity is capped
// there for good.
func (b *recordBuffer) room() bool {
	if len(b.recs) < cap(b.recs) {
		return true
	}
	if b.capped || cap(b.recs) >= b.maxRecs {
		return false
	}
	newCap := cap(b.recs) + b.chunkRecs
	if newCap+b.chunkRecs > b.maxRecs {
		// Take the last chunk along so the final slab lands exactly on
		// the budget.
		newCap = b.maxRecs
	}
	slab := b.alloc(newCap)
	if slab == nil {
		b.capped = true
		b.maxRecs = cap(b.recs)
		return false
	}
	n := copy(slab, b.recs)
	b.recs = slab[:n]
	return true
}

func (b *recordBuffer) append(rec *flowrec.Record) {
	b.recs = append(b.recs, *rec)
}

func (b *recordBuffer) len() int {
	return len(b.recs)
}

func (b *recordBuffer) records() []flowrec.Record {
	return b.recs
}

func (b *recordBuffer) reset() {
	b.recs = b.recs[:0]
}
