// Package chunked reassembles length-driven messages from a byte stream.
//
// A Message is a sequence of chunks whose sizes are decided one at a time by
// a ChunkSizer: once a chunk is full the sizer sees every chunk read so far
// and returns the size of the next one, or NoMoreChunks. A typical framing
// reads a fixed-size header chunk, then a body chunk whose size the header
// encodes:
//
//	sizer := func(chunks [][]byte) int {
//	    if len(chunks) == 1 {
//	        return int(binary.BigEndian.Uint32(chunks[0]))
//	    }
//	    return chunked.NoMoreChunks
//	}
//	msg := chunked.NewMessage(4, sizer)
//
// Bytes handed to Append stay owned by the caller. Consumed bytes are copied
// into chunk buffers owned by the message until Detach transfers them out or
// Release drops them.
//
// Collector turns a stream of reads into a stream of complete messages.
// Decoder wraps a Collector as a proxy.Sink so framing can be inserted into
// a relay leg. Single consumes exactly one leading message, such as a
// protocol preamble, and forwards every following byte verbatim.
package chunked
