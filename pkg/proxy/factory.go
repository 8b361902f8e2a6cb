package proxy

// ChannelFactory creates channels sharing TLS builders, identity source and
// telemetry.
type ChannelFactory struct {
	base ChannelOptions
}

// NewChannelFactory returns a factory copying base into every channel.
func NewChannelFactory(base ChannelOptions) *ChannelFactory {
	return &ChannelFactory{base: base}
}

// Create builds a channel relaying upstream to downstream.
func (f *ChannelFactory) Create(name string, upstream, downstream Endpoint) (*Channel, error) {
	opts := f.base
	opts.Name = name
	opts.Upstream = upstream
	opts.Downstream = downstream
	return NewChannel(opts)
}
