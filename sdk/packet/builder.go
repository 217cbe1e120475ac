package packet

// Builder assembles batches while reusing its buffers, so a transport that
// builds one batch per incoming callback stops allocating once the buffers
// have grown to the usual batch size.
//
// The *Batch returned by Batch aliases the builder and is valid until the
// next Reset. A Builder must be owned by a single goroutine.
type Builder struct {
	batch Batch
}

// NewBuilder returns a builder with room for the given number of packets
// and message bytes.
func NewBuilder(packets, bytes int) *Builder {
	return &Builder{batch: Batch{
		stamps: make([]Timestamp, 0, packets),
		ends:   make([]uint32, 0, packets),
		data:   make([]byte, 0, bytes),
	}}
}

// Reset empties the builder and assigns the source of the next batch.
func (bl *Builder) Reset(source SourceID) {
	bl.batch.source = source
	bl.batch.stamps = bl.batch.stamps[:0]
	bl.batch.ends = bl.batch.ends[:0]
	bl.batch.data = bl.batch.data[:0]
}

// Add appends a packet, applying the same structural checks as New.
func (bl *Builder) Add(ts Timestamp, msg []byte) error {
	return bl.batch.add(ts, msg)
}

// Len returns the number of packets added since the last Reset.
func (bl *Builder) Len() int { return len(bl.batch.stamps) }

// Batch returns the batch under construction.
func (bl *Builder) Batch() *Batch { return &bl.batch }
