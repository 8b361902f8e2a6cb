package chunked

import (
	"mercator-hq/tlsrelay/pkg/proxy"
)

// Decoder is a byte sink that frames its input into messages, decodes each
// complete message and hands the result to the next sink.
type Decoder[M any] struct {
	collector *Collector
	decode    func(*Message) (M, error)
	next      proxy.Sink[M]
}

// NewDecoder returns a decoder. decode owns the message it receives and
// must release or detach it.
func NewDecoder[M any](newMessage func() *Message, decode func(*Message) (M, error), next proxy.Sink[M]) *Decoder[M] {
	return &Decoder[M]{
		collector: NewCollector(newMessage),
		decode:    decode,
		next:      next,
	}
}

// NewMessageDecoder returns a decoder handing complete messages to next
// unchanged.
func NewMessageDecoder(newMessage func() *Message, next proxy.Sink[*Message]) *Decoder[*Message] {
	return NewDecoder(newMessage, func(m *Message) (*Message, error) { return m, nil }, next)
}

// Accept frames p. Errors from decode or the next sink are returned as is.
func (d *Decoder[M]) Accept(p []byte) error {
	return d.collector.Append(p, func(m *Message) error {
		v, err := d.decode(m)
		if err != nil {
			m.Release()
			return err
		}
		return d.next.Accept(v)
	})
}

// Close drops a partially received message and closes the next sink.
func (d *Decoder[M]) Close() error {
	d.collector.Release()
	return d.next.Close()
}

// Encoder forwards the data of every message it accepts to a byte sink.
type Encoder struct {
	next proxy.Sink[[]byte]
}

// NewEncoder returns an encoder writing to next.
func NewEncoder(next proxy.Sink[[]byte]) *Encoder {
	return &Encoder{next: next}
}

// Accept detaches the message data and forwards it. A nil message is
// dropped.
func (e *Encoder) Accept(m *Message) error {
	if m == nil {
		return nil
	}
	data, err := m.Detach()
	if err != nil {
		return err
	}
	return e.next.Accept(data)
}

func (e *Encoder) Close() error {
	return e.next.Close()
}

// NewFilter returns a relay filter that reframes its direction into
// messages and passes each through handle before re-encoding it. handle may
// return a different message, or nil to drop it.
func NewFilter(newMessage func() *Message, handle func(*Message) (*Message, error)) proxy.Filter {
	return func(next proxy.Sink[[]byte]) proxy.Sink[[]byte] {
		return NewDecoder(newMessage, handle, proxy.Sink[*Message](NewEncoder(next)))
	}
}
