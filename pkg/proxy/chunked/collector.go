package chunked

import (
	"errors"
	"fmt"
)

// ErrNoProgress is returned when a message completes without consuming any
// byte while input remains, which would otherwise loop forever.
var ErrNoProgress = errors.New("chunked: message completed without consuming input")

// Collector splits a byte stream into complete messages.
type Collector struct {
	newMessage func() *Message
	current    *Message
}

// NewCollector returns a collector that starts every message with
// newMessage.
func NewCollector(newMessage func() *Message) *Collector {
	return &Collector{newMessage: newMessage}
}

// Append feeds p to the current message and hands every message completed by
// p to consume, in order. A partial message is kept for the next call.
//
// consume owns the message it receives. If consume returns an error,
// Append stops and returns it; the unconsumed bytes of p are dropped.
func (c *Collector) Append(p []byte, consume func(*Message) error) error {
	for {
		if c.current == nil {
			c.current = c.newMessage()
		}

		// A message may complete on construction when its sizer needs no bytes.
		rest := p
		if !c.current.IsComplete() {
			var err error
			if rest, err = c.current.Append(p); err != nil {
				c.Release()
				return err
			}
			if !c.current.IsComplete() {
				return nil
			}
		}

		msg := c.current
		c.current = nil
		if err := consume(msg); err != nil {
			return err
		}

		if len(rest) == 0 {
			return nil
		}
		if len(rest) == len(p) && msg.Len() == 0 {
			return fmt.Errorf("%w: %d bytes pending", ErrNoProgress, len(rest))
		}
		p = rest
	}
}

// Pending reports whether a partial message is buffered.
func (c *Collector) Pending() bool {
	return c.current != nil && c.current.Len() > 0
}

// Release drops a partial message.
func (c *Collector) Release() {
	if c.current != nil {
		c.current.Release()
		c.current = nil
	}
}
