package proxy

// ConnectionFilters decorate the two relay directions of one connection.
// Upstream filters see the bytes the upstream client sends, Downstream
// filters the bytes the downstream server sends back.
type ConnectionFilters struct {
	Upstream   []Filter
	Downstream []Filter
}

// ContextFactory creates the per-connection filters once the downstream
// leg is established. It runs on the connection's goroutine, so filters may
// keep unsynchronized state.
type ContextFactory interface {
	NewFilters(s *Session) (ConnectionFilters, error)
}

// ContextFactoryFunc adapts a function to ContextFactory.
type ContextFactoryFunc func(s *Session) (ConnectionFilters, error)

// NewFilters calls f.
func (f ContextFactoryFunc) NewFilters(s *Session) (ConnectionFilters, error) {
	return f(s)
}
