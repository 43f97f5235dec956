// Package tundev adapts a host TUN device to the io.ReadWriteCloser
// shape the demultiplexer needs, grounded in the teacher codebase's
// internal/tap.go raw-ioctl pattern but built on golang.org/x/sys/unix.
package tundev

import "errors"

// ErrUnsupportedPlatform is returned by Open on platforms without a TUN
// device adapter in this repository (only Linux is implemented).
var ErrUnsupportedPlatform = errors.New("tundev: unsupported platform")

// Device is a packet-mode (no 4-byte packet-info prefix) point-to-point
// TUN interface: one Read returns exactly one IPv4 frame, one Write
// transmits exactly one IPv4 frame.
type Device interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
	Name() string
}
