package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tlsrelay/pkg/config"
	tlsutil "mercator-hq/tlsrelay/pkg/security/tls"
	"mercator-hq/tlsrelay/pkg/telemetry/logging"
	"mercator-hq/tlsrelay/pkg/telemetry/metrics"
	"mercator-hq/tlsrelay/pkg/telemetry/tracing"
)

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	Name       string
	Upstream   Endpoint
	Downstream Endpoint

	// ServerTLS terminates TLS on accepted connections. Nil accepts
	// plaintext.
	ServerTLS *tlsutil.ServerBuilder

	// ClientTLS originates TLS towards the downstream endpoint. Nil dials
	// plaintext.
	ClientTLS *tlsutil.ClientBuilder

	// Identity supplies the downstream client certificate. Only used with
	// ClientTLS.
	Identity ClientIdentitySource

	// Filters creates per-connection relay filters.
	Filters ContextFactory

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteQueueSize   int
	ReadBufferSize   int
	ShutdownTimeout  time.Duration

	// Dialer defaults to a *net.Dialer.
	Dialer Dialer

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
}

func (o *ChannelOptions) applyDefaults() {
	if o.DialTimeout == 0 {
		o.DialTimeout = config.DefaultDialTimeout
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if o.WriteQueueSize == 0 {
		o.WriteQueueSize = config.DefaultWriteQueueSize
	}
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = config.DefaultReadBufferSize
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Channel binds one upstream listening endpoint to one downstream endpoint.
// Every accepted connection gets its own downstream connection.
type Channel struct {
	opts    ChannelOptions
	builder *PipelineBuilder
	logger  *slog.Logger
	clock   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	started    bool
	closed     bool
	acceptDone chan struct{}
	active     map[string]*Session
	conns      sync.WaitGroup
}

// NewChannel validates opts and builds the connection pipeline.
func NewChannel(opts ChannelOptions) (*Channel, error) {
	if opts.Name == "" {
		return nil, errors.New("channel name is required")
	}
	if opts.Downstream.Host == "" {
		return nil, fmt.Errorf("channel %s: downstream host is required", opts.Name)
	}
	if opts.Downstream.Port <= 0 || opts.Downstream.Port > 65535 {
		return nil, fmt.Errorf("channel %s: invalid downstream port %d", opts.Name, opts.Downstream.Port)
	}
	if opts.Upstream.Port < 0 || opts.Upstream.Port > 65535 {
		return nil, fmt.Errorf("channel %s: invalid upstream port %d", opts.Name, opts.Upstream.Port)
	}
	if opts.Identity != nil && opts.ClientTLS == nil {
		return nil, fmt.Errorf("channel %s: a client identity source requires downstream TLS", opts.Name)
	}
	opts.applyDefaults()

	// Connection fields travel in the context; make sure they are logged.
	handler := opts.Logger.Handler()
	if _, ok := handler.(*logging.ContextHandler); !ok {
		handler = logging.NewContextHandler(handler)
	}

	ctx, cancel := context.WithCancel(logging.WithChannel(context.Background(), opts.Name))
	c := &Channel{
		opts:   opts,
		logger: slog.New(handler).With("component", "proxy.channel"),
		clock:  time.Now,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]*Session),
	}
	c.builder = c.pipelineBuilder()
	return c, nil
}

func (c *Channel) pipelineBuilder() *PipelineBuilder {
	o := c.opts
	b := NewPipelineBuilder().WithTracer(o.Tracer)

	if o.ServerTLS != nil {
		b.Add(UpstreamTLSStage(o.ServerTLS, o.HandshakeTimeout)).
			Add(CaptureIdentityStage())
	}
	if o.ClientTLS != nil {
		b.Add(ResolveClientBundleStage(o.Identity))
	}
	b.Add(DialStage(o.Dialer, o.Downstream, o.DialTimeout))
	if o.ClientTLS != nil {
		b.Add(DownstreamTLSStage(o.ClientTLS, o.Downstream.Host, o.HandshakeTimeout))
	}

	return b.Add(RelayStage(RelayOptions{
		ReadBufferSize: o.ReadBufferSize,
		WriteQueueSize: o.WriteQueueSize,
		Filters:        o.Filters,
		OnBytes: func(direction string, n int) {
			o.Metrics.RecordBytes(o.Name, direction, n)
		},
	}))
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.opts.Name
}

// Start binds the upstream endpoint and starts accepting. Calling Start on
// a running channel is a no-op.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.started {
		return nil
	}

	ln, err := net.Listen("tcp", c.opts.Upstream.String())
	if err != nil {
		return fmt.Errorf("channel %s: listen on %s: %w", c.opts.Name, c.opts.Upstream, err)
	}
	c.listener = ln
	c.started = true
	c.acceptDone = make(chan struct{})

	c.logger.InfoContext(c.ctx, "channel started",
		"upstream", ln.Addr().String(),
		"downstream", c.opts.Downstream.String(),
		"upstream_tls", c.opts.ServerTLS != nil,
		"downstream_tls", c.opts.ClientTLS != nil,
		"stages", c.builder.Build().Stages(),
	)

	go c.acceptLoop(ln)
	return nil
}

// Addr returns the bound upstream address, or nil before Start.
func (c *Channel) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Serving reports whether the channel is accepting connections.
func (c *Channel) Serving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closed
}

// ActiveConnections returns the number of connections in flight.
func (c *Channel) ActiveConnections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Close stops accepting and waits up to the shutdown timeout for in-flight
// connections before closing them.
func (c *Channel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ShutdownTimeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// Shutdown stops accepting and waits for in-flight connections until ctx is
// done, then closes the remaining ones. It returns ctx's error if
// connections had to be closed.
func (c *Channel) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ln, acceptDone := c.listener, c.acceptDone
	c.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
		<-acceptDone
	}

	done := make(chan struct{})
	go func() {
		c.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		c.logger.InfoContext(c.ctx, "channel closed")
		return nil
	case <-ctx.Done():
		remaining := c.ActiveConnections()
		c.cancel()
		<-done
		c.logger.WarnContext(c.ctx, "channel closed with connections still open", "closed_connections", remaining)
		return fmt.Errorf("channel %s: %d connections force-closed: %w", c.opts.Name, remaining, ctx.Err())
	}
}

func (c *Channel) acceptLoop(ln net.Listener) {
	defer close(c.acceptDone)

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			c.logger.WarnContext(c.ctx, "accept failed, retrying", "error", err, "retry_in", tempDelay)
			select {
			case <-time.After(tempDelay):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		tempDelay = 0

		c.conns.Add(1)
		go c.handle(conn)
	}
}

func (c *Channel) handle(conn net.Conn) {
	defer c.conns.Done()

	id := uuid.NewString()
	name := c.opts.Name
	remote := conn.RemoteAddr().String()

	ctx := logging.WithConnectionID(c.ctx, id)
	ctx, span := c.opts.Tracer.StartConnection(ctx, name, id, remote)
	defer span.End()

	s := newSession(id, name, conn, c.logger, c.clock())
	c.mu.Lock()
	c.active[id] = s
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.active, id)
		c.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, s.closeConns)
	defer stop()

	c.opts.Metrics.ConnectionOpened(name)
	c.logger.InfoContext(ctx, "connection accepted",
		"remote", remote,
		"local", conn.LocalAddr().String(),
	)

	err := c.run(ctx, s)

	s.setState(StateClosing)
	s.closeConns()
	s.setState(StateClosed)

	outcome := Outcome(err)
	switch outcome {
	case OutcomeUpstreamTLSFailed:
		c.opts.Metrics.RecordHandshakeFailure(name, LegUpstream)
	case OutcomeDownstreamTLSFailed:
		c.opts.Metrics.RecordHandshakeFailure(name, LegDownstream)
	}

	duration := c.clock().Sub(s.StartedAt)
	c.opts.Metrics.ConnectionClosed(name, outcome, duration)

	tracing.NewAttributeBuilder().
		WithBytes(s.BytesUpstream, s.BytesDownstream).
		WithCustom(tracing.AttrOutcome, outcome).
		Apply(span)
	tracing.SetStatus(span, err)

	attrs := []any{
		"outcome", outcome,
		"duration", duration,
		"bytes_upstream", s.BytesUpstream,
		"bytes_downstream", s.BytesDownstream,
	}
	switch outcome {
	case OutcomeOK:
		c.logger.InfoContext(ctx, "connection closed", attrs...)
	case OutcomeRelayError, OutcomeInternalError:
		c.logger.ErrorContext(ctx, "connection closed", append(attrs, "error", err)...)
	default:
		c.logger.WarnContext(ctx, "connection closed", append(attrs, "error", err)...)
	}
}

// run executes the pipeline, converting a panic into an error so one
// connection cannot take the channel down.
func (c *Channel) run(ctx context.Context, s *Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "panic in connection handler",
				"error", r,
				"state", s.State().String(),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic in state %s: %v", s.State(), r)
		}
	}()
	return c.builder.Build().Run(ctx, s)
}
