//go:build !linux

package tundev

// Open is unimplemented outside Linux: the TUNSETIFF ioctl and the
// IFF_TUN/IFF_NO_PI flags this repository relies on are Linux-specific.
func Open(name string) (Device, error) {
	return nil, ErrUnsupportedPlatform
}
