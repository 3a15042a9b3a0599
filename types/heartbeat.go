package types

import "net"

// Heartbeat is a liveness pulse from the trusted relayer. It carries the
// addresses the relayer wants advertised in place of our own while it is
// alive.
type Heartbeat struct {
	TPU        *net.UDPAddr
	TPUForward *net.UDPAddr
}
