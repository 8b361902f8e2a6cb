package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sync/errgroup"
)

// Relay directions, used as the direction label of byte metrics.
const (
	DirectionUpstream   = "upstream_to_downstream"
	DirectionDownstream = "downstream_to_upstream"
)

// RelayOptions configures the byte relay of a connection.
type RelayOptions struct {
	ReadBufferSize int
	WriteQueueSize int

	// Filters creates per-connection filters. Nil relays bytes verbatim.
	Filters ContextFactory

	// OnBytes observes every read. It is called from both pump goroutines.
	OnBytes func(direction string, n int)
}

// RelayStage pumps bytes between the two legs until either side closes.
func RelayStage(opts RelayOptions) Stage {
	return Stage{
		Name:    StageRelay,
		State:   StateRelaying,
		Outcome: OutcomeRelayError,
		Run: func(ctx context.Context, s *Session) error {
			return relay(ctx, s, opts)
		},
	}
}

func relay(ctx context.Context, s *Session, opts RelayOptions) error {
	var filters ConnectionFilters
	if opts.Filters != nil {
		var err error
		if filters, err = opts.Filters.NewFilters(s); err != nil {
			return fmt.Errorf("create connection filters: %w", err)
		}
	}

	toDownstream := Chain(NewConnSink(s.Downstream, opts.WriteQueueSize, s.Logger), filters.Upstream...)
	toUpstream := Chain(NewConnSink(s.Upstream, opts.WriteQueueSize, s.Logger), filters.Downstream...)

	g, gctx := errgroup.WithContext(ctx)
	// A failed leg, or cancellation, tears down both.
	stop := context.AfterFunc(gctx, s.closeConns)
	defer stop()

	g.Go(func() error {
		n, err := pump(s.Upstream, toDownstream, opts.ReadBufferSize, func(n int) {
			if opts.OnBytes != nil {
				opts.OnBytes(DirectionUpstream, n)
			}
		})
		s.BytesUpstream = n
		return err
	})
	g.Go(func() error {
		n, err := pump(s.Downstream, toUpstream, opts.ReadBufferSize, func(n int) {
			if opts.OnBytes != nil {
				opts.OnBytes(DirectionDownstream, n)
			}
		})
		s.BytesDownstream = n
		return err
	})

	return g.Wait()
}

// pump reads src into dst until src ends. On return dst is closed, which
// flushes and closes the opposite connection, and then src is closed so the
// opposite pump cannot stay blocked on a stalled peer.
func pump(src net.Conn, dst Sink[[]byte], size int, onRead func(int)) (int64, error) {
	defer src.Close()
	defer dst.Close()

	if size <= 0 {
		size = 32 * 1024
	}
	buf := make([]byte, size)

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			total += int64(n)
			onRead(n)
			if err := dst.Accept(buf[:n]); err != nil {
				if isClosedConn(err) {
					return total, nil
				}
				return total, fmt.Errorf("relay write: %w", err)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || isClosedConn(rerr) {
				return total, nil
			}
			return total, fmt.Errorf("relay read: %w", rerr)
		}
	}
}
