package proxy

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrChannelClosed is returned by Start after Close.
	ErrChannelClosed = errors.New("proxy channel closed")

	// ErrSinkClosed is returned when writing to a closed sink.
	ErrSinkClosed = errors.New("sink closed")
)

// Connection outcomes, used as the outcome label of connection metrics and
// in the "connection closed" log event.
const (
	OutcomeOK                  = "ok"
	OutcomeUpstreamTLSFailed   = "upstream_tls_failed"
	OutcomeIssuanceFailed      = "issuance_failed"
	OutcomeDownstreamFailed    = "downstream_failed"
	OutcomeDownstreamTLSFailed = "downstream_tls_failed"
	OutcomeRelayError          = "relay_error"
	OutcomeInternalError       = "internal_error"
)

// StageError reports the pipeline stage a connection failed in.
type StageError struct {
	Stage   string
	Outcome string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Outcome returns the outcome label for err: OutcomeOK for nil, the stage
// outcome for a StageError and OutcomeInternalError otherwise.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var se *StageError
	if errors.As(err, &se) && se.Outcome != "" {
		return se.Outcome
	}
	return OutcomeInternalError
}

// isClosedConn reports whether err is the normal end of a relay leg: EOF
// from the peer, a connection we closed ourselves, or a peer reset.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
