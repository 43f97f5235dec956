//go:build linux

package tundev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// linuxDevice wraps the /dev/net/tun file descriptor obtained via the
// TUNSETIFF ioctl, configured for IFF_TUN|IFF_NO_PI: whole IPv4 frames,
// no 4-byte packet-info prefix (design §10.2, resolving the distilled
// spec's PI-mode ambiguity).
type linuxDevice struct {
	file *os.File
	name string
}

// Open creates (or attaches to) the named TUN interface. The caller
// needs CAP_NET_ADMIN.
func Open(name string) (Device, error) {
	f, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tundev: open /dev/net/tun: %w", err)
	}

	req, err := unix.NewIfreq(name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tundev: build ifreq: %w", err)
	}
	req.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)

	if err := unix.IoctlIfreq(int(f.Fd()), unix.TUNSETIFF, req); err != nil {
		f.Close()
		return nil, fmt.Errorf("tundev: TUNSETIFF: %w", err)
	}

	return &linuxDevice{file: f, name: req.Name()}, nil
}

func (d *linuxDevice) Read(buf []byte) (int, error)  { return d.file.Read(buf) }
func (d *linuxDevice) Write(buf []byte) (int, error) { return d.file.Write(buf) }
func (d *linuxDevice) Close() error                  { return d.file.Close() }
func (d *linuxDevice) Name() string                  { return d.name }
