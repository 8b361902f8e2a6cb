package proxy

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Sink consumes values of one direction of a connection. Close releases the
// sink and everything downstream of it. Implementations are driven by a
// single goroutine.
type Sink[T any] interface {
	Accept(v T) error
	Close() error
}

type funcSink[T any] struct {
	accept func(T) error
	close  func() error
}

// NewFuncSink adapts functions to a Sink. A nil close is a no-op.
func NewFuncSink[T any](accept func(T) error, close func() error) Sink[T] {
	return &funcSink[T]{accept: accept, close: close}
}

func (s *funcSink[T]) Accept(v T) error { return s.accept(v) }

func (s *funcSink[T]) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Filter decorates the sink of one relay direction.
type Filter func(next Sink[[]byte]) Sink[[]byte]

// Chain wraps sink with filters. filters[0] sees the bytes first.
func Chain(sink Sink[[]byte], filters ...Filter) Sink[[]byte] {
	for i := len(filters) - 1; i >= 0; i-- {
		sink = filters[i](sink)
	}
	return sink
}

// DefaultFlushTimeout bounds how long Close waits for queued writes.
const DefaultFlushTimeout = 5 * time.Second

// ConnSink writes to a connection from its own goroutine through a bounded
// queue, so a slow peer only stalls the reader feeding this sink once the
// queue is full.
//
// A write failure closes the connection. Close flushes the queue and then
// closes the connection.
type ConnSink struct {
	conn         net.Conn
	queue        chan []byte
	closing      chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	flushTimeout time.Duration
	logger       *slog.Logger

	written atomic.Int64
	err     atomic.Pointer[error]
}

// NewConnSink starts the writer goroutine for conn. queueSize below 1 is
// treated as 1.
func NewConnSink(conn net.Conn, queueSize int, logger *slog.Logger) *ConnSink {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConnSink{
		conn:         conn,
		queue:        make(chan []byte, queueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		flushTimeout: DefaultFlushTimeout,
		logger:       logger,
	}
	go s.run()
	return s
}

// Accept queues a copy of p. It blocks while the queue is full.
func (s *ConnSink) Accept(p []byte) error {
	if err := s.Err(); err != nil {
		return err
	}
	select {
	case <-s.closing:
		return ErrSinkClosed
	default:
	}
	if len(p) == 0 {
		return nil
	}

	// The reader reuses its buffer.
	buf := append([]byte(nil), p...)
	select {
	case s.queue <- buf:
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSinkClosed
	}
}

// Close flushes queued writes, bounded by the flush timeout, closes the
// connection and waits for the writer goroutine.
func (s *ConnSink) Close() error {
	s.closeOnce.Do(func() {
		// Also bounds a Write that is already blocked on a stalled peer.
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.flushTimeout))
		close(s.closing)
	})
	<-s.done
	return nil
}

// Done is closed once the writer goroutine has exited.
func (s *ConnSink) Done() <-chan struct{} {
	return s.done
}

// Err returns the write error that stopped the sink, if any.
func (s *ConnSink) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Written returns the number of bytes written to the connection.
func (s *ConnSink) Written() int64 {
	return s.written.Load()
}

func (s *ConnSink) run() {
	defer close(s.done)
	defer s.conn.Close()

	for {
		select {
		case p := <-s.queue:
			if !s.write(p) {
				return
			}
		case <-s.closing:
			for {
				select {
				case p := <-s.queue:
					if !s.write(p) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *ConnSink) write(p []byte) bool {
	n, err := s.conn.Write(p)
	s.written.Add(int64(n))
	if err != nil {
		s.err.Store(&err)
		if !isClosedConn(err) {
			s.logger.Debug("relay write failed", "error", err, "pending", len(s.queue))
		}
		return false
	}
	return true
}
