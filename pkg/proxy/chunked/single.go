package chunked

import (
	"mercator-hq/tlsrelay/pkg/proxy"
)

// Single consumes one leading message from a byte stream and forwards every
// byte after it to the next sink unchanged.
type Single struct {
	msg       *Message
	onMessage func(*Message) error
	next      proxy.Sink[[]byte]
}

// NewSingle returns a sink reading msg first. onMessage owns msg once it is
// complete.
func NewSingle(msg *Message, onMessage func(*Message) error, next proxy.Sink[[]byte]) *Single {
	return &Single{msg: msg, onMessage: onMessage, next: next}
}

// NewSingleFilter returns a relay filter consuming one leading message.
func NewSingleFilter(newMessage func() *Message, onMessage func(*Message) error) proxy.Filter {
	return func(next proxy.Sink[[]byte]) proxy.Sink[[]byte] {
		return NewSingle(newMessage(), onMessage, next)
	}
}

// Accept feeds p to the leading message until it completes, then forwards
// the remainder.
func (s *Single) Accept(p []byte) error {
	if s.msg == nil {
		return s.next.Accept(p)
	}

	rest := p
	if !s.msg.IsComplete() {
		var err error
		if rest, err = s.msg.Append(p); err != nil {
			return err
		}
		if !s.msg.IsComplete() {
			return nil
		}
	}

	msg := s.msg
	s.msg = nil
	if err := s.onMessage(msg); err != nil {
		return err
	}
	if len(rest) == 0 {
		return nil
	}
	return s.next.Accept(rest)
}

// Consumed reports whether the leading message has been handed off.
func (s *Single) Consumed() bool {
	return s.msg == nil
}

// Close releases an incomplete leading message and closes the next sink.
func (s *Single) Close() error {
	if s.msg != nil {
		s.msg.Release()
		s.msg = nil
	}
	return s.next.Close()
}
