// Package flow defines the four-tuple flow key shared by the connection
// table and the TCB, kept separate from both to avoid an import cycle
// between them.
package flow

import "fmt"

// Quad is the four-tuple (remote IP, remote port, local IP, local port)
// that uniquely identifies a TCP connection. It is comparable and thus
// usable directly as a map key.
type Quad struct {
	RemoteAddr [4]byte
	RemotePort uint16
	LocalAddr  [4]byte
	LocalPort  uint16
}

// NewQuad builds a Quad from slice-form addresses, as decoded off the
// wire. Addresses must be exactly 4 bytes (IPv4).
func NewQuad(remoteAddr, localAddr []byte, remotePort, localPort uint16) Quad {
	var q Quad
	copy(q.RemoteAddr[:], remoteAddr)
	copy(q.LocalAddr[:], localAddr)
	q.RemotePort = remotePort
	q.LocalPort = localPort
	return q
}

func (q Quad) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d -> %d.%d.%d.%d:%d",
		q.RemoteAddr[0], q.RemoteAddr[1], q.RemoteAddr[2], q.RemoteAddr[3], q.RemotePort,
		q.LocalAddr[0], q.LocalAddr[1], q.LocalAddr[2], q.LocalAddr[3], q.LocalPort)
}
