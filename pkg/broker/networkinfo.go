package broker

import (
	"fmt"
	"time"
)

// NetworkInfo identifies a peer by address and port; Retry is the backoff
// used for reconnection attempts and is excluded from equality, per §3.
type NetworkInfo struct {
	Address string
	Port    uint16
	Retry   time.Duration
}

// Equal compares address and port only, ignoring Retry.
func (n NetworkInfo) Equal(other NetworkInfo) bool {
	return n.Address == other.Address && n.Port == other.Port
}

func (n NetworkInfo) String() string {
	return fmt.Sprintf("%s:%d", n.Address, n.Port)
}

// PeerStatus is the lifecycle state of a peer relationship, per §3/§4.6.
type PeerStatus uint8

const (
	PeerInitialized PeerStatus = iota
	PeerConnecting
	PeerConnected
	PeerPeered
	PeerDisconnected
)

func (s PeerStatus) String() string {
	switch s {
	case PeerInitialized:
		return "initialized"
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerPeered:
		return "peered"
	case PeerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PeerInfo is the externally visible record of a peer relationship.
type PeerInfo struct {
	EndpointID NodeID
	Network    NetworkInfo
	Status     PeerStatus
}
