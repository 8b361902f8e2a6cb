package chunked

import (
	"errors"
	"fmt"
	"strings"
)

// NoMoreChunks is returned by a ChunkSizer when the message is complete.
const NoMoreChunks = -1

// MaxEmptyChunks bounds how many zero-sized chunks a sizer may open in a row
// before the message fails with ErrInvalidChunkSize.
const MaxEmptyChunks = 64

var (
	// ErrMessageComplete is returned when appending to a complete message.
	ErrMessageComplete = errors.New("chunked: message already complete")

	// ErrMessageIncomplete is returned when reading an incomplete message.
	ErrMessageIncomplete = errors.New("chunked: message not complete")

	// ErrInvalidChunkSize is returned when a sizer returns a negative size
	// other than NoMoreChunks, or more than MaxEmptyChunks empty chunks in a
	// row.
	ErrInvalidChunkSize = errors.New("chunked: invalid chunk size")

	// ErrMessageReleased is returned when using a released or detached
	// message.
	ErrMessageReleased = errors.New("chunked: message released")
)

// ChunkSizer returns the size of the chunk following chunks, or
// NoMoreChunks. chunks holds every chunk read so far, all of them full.
type ChunkSizer func(chunks [][]byte) int

// Message is a message being reassembled from chunks. It is not safe for
// concurrent use.
type Message struct {
	chunks   [][]byte
	filled   int
	sizer    ChunkSizer
	complete bool
	released bool
	err      error
}

// NewMessage starts a message whose first chunk is initial bytes long. A
// zero-sized first chunk asks the sizer immediately.
func NewMessage(initial int, sizer ChunkSizer) *Message {
	m := &Message{sizer: sizer}
	if initial < 0 {
		m.err = fmt.Errorf("%w: initial size %d", ErrInvalidChunkSize, initial)
		return m
	}
	m.chunks = [][]byte{make([]byte, initial)}
	m.err = m.advance()
	return m
}

// NewCompleteMessage wraps already framed chunks. The message takes
// ownership of chunks.
func NewCompleteMessage(chunks [][]byte) *Message {
	return &Message{chunks: chunks, complete: true}
}

// advance opens chunks for as long as the current one is full.
func (m *Message) advance() error {
	empty := 0
	for !m.complete && m.filled == len(m.current()) {
		next := m.sizer(m.chunks)
		switch {
		case next == NoMoreChunks:
			m.complete = true
		case next < 0:
			return fmt.Errorf("%w: %d after chunk %d", ErrInvalidChunkSize, next, len(m.chunks)-1)
		case next == 0 && empty == MaxEmptyChunks:
			return fmt.Errorf("%w: %d consecutive empty chunks", ErrInvalidChunkSize, empty+1)
		default:
			if next == 0 {
				empty++
			} else {
				empty = 0
			}
			m.chunks = append(m.chunks, make([]byte, next))
			m.filled = 0
		}
	}
	return nil
}

func (m *Message) current() []byte {
	return m.chunks[len(m.chunks)-1]
}

// Append copies bytes from p into the message until it is complete or p is
// exhausted, and returns the unconsumed tail of p. When p fits exactly the
// returned slice is empty. p is never retained.
func (m *Message) Append(p []byte) (rest []byte, err error) {
	switch {
	case m.released:
		return p, ErrMessageReleased
	case m.err != nil:
		return p, m.err
	case m.complete:
		return p, ErrMessageComplete
	}

	for len(p) > 0 && !m.complete {
		n := copy(m.current()[m.filled:], p)
		m.filled += n
		p = p[n:]

		if err := m.advance(); err != nil {
			m.err = err
			return p, err
		}
	}
	return p, nil
}

// IsComplete reports whether the sizer has returned NoMoreChunks.
func (m *Message) IsComplete() bool {
	return m.complete && !m.released
}

// Chunks returns the chunks of a complete message. The slices are owned by
// the message.
func (m *Message) Chunks() ([][]byte, error) {
	if err := m.readable(); err != nil {
		return nil, err
	}
	return m.chunks, nil
}

// Chunk returns a copy of chunk i of a complete message.
func (m *Message) Chunk(i int) ([]byte, error) {
	if err := m.readable(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(m.chunks) {
		return nil, fmt.Errorf("chunked: chunk index %d out of range [0,%d)", i, len(m.chunks))
	}
	return append([]byte(nil), m.chunks[i]...), nil
}

// Len returns the number of bytes consumed so far.
func (m *Message) Len() int {
	if m.released || len(m.chunks) == 0 {
		return 0
	}
	n := 0
	for _, c := range m.chunks[:len(m.chunks)-1] {
		n += len(c)
	}
	if m.complete {
		return n + len(m.current())
	}
	return n + m.filled
}

// Bytes returns the concatenated data of a complete message as a new slice.
// The message keeps its chunks.
func (m *Message) Bytes() ([]byte, error) {
	if err := m.readable(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, m.Len())
	for _, c := range m.chunks {
		out = append(out, c...)
	}
	return out, nil
}

// Detach returns the concatenated data of a complete message and transfers
// its ownership to the caller. The message is released afterwards.
func (m *Message) Detach() ([]byte, error) {
	if err := m.readable(); err != nil {
		return nil, err
	}
	var out []byte
	if len(m.chunks) == 1 {
		out = m.chunks[0]
	} else {
		out, _ = m.Bytes()
	}
	m.Release()
	return out, nil
}

// Release drops the message buffers. It is safe to call more than once.
func (m *Message) Release() {
	m.chunks = nil
	m.filled = 0
	m.released = true
}

func (m *Message) readable() error {
	switch {
	case m.released:
		return ErrMessageReleased
	case !m.complete:
		return ErrMessageIncomplete
	}
	return nil
}

func (m *Message) String() string {
	var b strings.Builder
	b.WriteString("Message{len=")
	fmt.Fprint(&b, m.Len())
	b.WriteString(", chunks=[")
	for i, c := range m.chunks {
		if i > 0 {
			b.WriteString(" ")
		}
		if i == len(m.chunks)-1 && !m.complete {
			fmt.Fprintf(&b, "%d/%d", m.filled, len(c))
			continue
		}
		fmt.Fprint(&b, len(c))
	}
	fmt.Fprintf(&b, "], complete=%t}", m.IsComplete())
	return b.String()
}
