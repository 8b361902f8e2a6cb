package proxy

// State is the lifecycle state of a relayed connection.
type State int

const (
	StateAccepted State = iota
	StateUpstreamTLSEstablishing
	StateUpstreamReady
	StateDownstreamConnecting
	StateDownstreamTLSEstablishing
	StateRelaying
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateAccepted:                  "accepted",
	StateUpstreamTLSEstablishing:   "upstream_tls_establishing",
	StateUpstreamReady:             "upstream_ready",
	StateDownstreamConnecting:      "downstream_connecting",
	StateDownstreamTLSEstablishing: "downstream_tls_establishing",
	StateRelaying:                  "relaying",
	StateClosing:                   "closing",
	StateClosed:                    "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
