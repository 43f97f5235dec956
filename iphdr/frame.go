// Package iphdr implements a minimal IPv4 (RFC 791) header codec: a
// typed view over a byte buffer, with no options support, matching the
// on-wire format this repository emits and expects.
package iphdr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/arunvijayshankar/trust/checksum"
)

const (
	// SizeHeader is the fixed IPv4 header length in bytes (no options).
	SizeHeader = 20
	// ProtoTCP is the IPv4 protocol number for TCP.
	ProtoTCP = 6
)

var (
	ErrShortBuffer = errors.New("iphdr: buffer shorter than header")
	ErrBadVersion  = errors.New("iphdr: version field is not 4")
	ErrBadLength   = errors.New("iphdr: header/total length inconsistent with buffer")
	ErrZeroSource  = errors.New("iphdr: zero source address")
	ErrZeroDest    = errors.New("iphdr: zero destination address")
	ErrChecksum    = errors.New("iphdr: checksum mismatch")
)

// Frame is a view over a byte slice holding one IPv4 datagram.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as an IPv4 Frame. buf must be at least SizeHeader
// bytes; callers should still call ValidateSize/ValidateChecksum before
// trusting header fields.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < SizeHeader {
		return Frame{}, ErrShortBuffer
	}
	return Frame{buf: buf}, nil
}

// RawData returns the underlying buffer.
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) VersionAndIHL() uint8 { return f.buf[0] }
func (f Frame) SetVersionAndIHL(v uint8) { f.buf[0] = v }

// IHL returns the header length in bytes, derived from the low nibble
// of the version/IHL byte (counted in 32-bit words).
func (f Frame) IHL() int { return int(f.buf[0]&0xf) * 4 }

func (f Frame) SetVersion4IHL(words uint8) {
	f.buf[0] = 0x40 | (words & 0xf)
}

func (f Frame) ToS() uint8     { return f.buf[1] }
func (f Frame) SetToS(v uint8) { f.buf[1] = v }

func (f Frame) TotalLength() uint16     { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) SetTotalLength(v uint16) { binary.BigEndian.PutUint16(f.buf[2:4], v) }

func (f Frame) ID() uint16     { return binary.BigEndian.Uint16(f.buf[4:6]) }
func (f Frame) SetID(v uint16) { binary.BigEndian.PutUint16(f.buf[4:6], v) }

func (f Frame) FlagsAndFragOffset() uint16     { return binary.BigEndian.Uint16(f.buf[6:8]) }
func (f Frame) SetFlagsAndFragOffset(v uint16) { binary.BigEndian.PutUint16(f.buf[6:8], v) }

func (f Frame) TTL() uint8     { return f.buf[8] }
func (f Frame) SetTTL(v uint8) { f.buf[8] = v }

func (f Frame) Protocol() uint8     { return f.buf[9] }
func (f Frame) SetProtocol(v uint8) { f.buf[9] = v }

func (f Frame) CRC() uint16     { return binary.BigEndian.Uint16(f.buf[10:12]) }
func (f Frame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[10:12], v) }

// SourceAddr returns a view into the 4-byte source address field.
func (f Frame) SourceAddr() []byte { return f.buf[12:16] }

// DestinationAddr returns a view into the 4-byte destination address field.
func (f Frame) DestinationAddr() []byte { return f.buf[16:20] }

func (f Frame) SetSourceAddr(addr [4]byte)      { copy(f.buf[12:16], addr[:]) }
func (f Frame) SetDestinationAddr(addr [4]byte) { copy(f.buf[16:20], addr[:]) }

// Payload returns the bytes after the (options-free) header.
func (f Frame) Payload() []byte { return f.buf[SizeHeader:] }

// ClearHeader zeros the fixed header portion.
func (f Frame) ClearHeader() {
	for i := range f.buf[:SizeHeader] {
		f.buf[i] = 0
	}
}

// ValidateSize checks the version, IHL and total-length fields against
// the actual buffer length.
func (f Frame) ValidateSize() error {
	if len(f.buf) < SizeHeader {
		return ErrShortBuffer
	}
	if f.buf[0]>>4 != 4 {
		return ErrBadVersion
	}
	ihl := f.IHL()
	if ihl < SizeHeader || ihl > len(f.buf) {
		return ErrBadLength
	}
	if int(f.TotalLength()) > len(f.buf) {
		return ErrBadLength
	}
	return nil
}

// ValidateAddrs rejects all-zero source/destination addresses.
func (f Frame) ValidateAddrs() error {
	if isZeroAddr(f.SourceAddr()) {
		return ErrZeroSource
	}
	if isZeroAddr(f.DestinationAddr()) {
		return ErrZeroDest
	}
	return nil
}

func isZeroAddr(addr []byte) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}

// CalculateHeaderCRC computes the IPv4 header checksum (options-free,
// so always exactly SizeHeader bytes, with the existing checksum field
// treated as zero per RFC 791 §3.1).
func (f Frame) CalculateHeaderCRC() uint16 {
	var crc checksum.CRC791
	var hdr [SizeHeader]byte
	copy(hdr[:], f.buf[:SizeHeader])
	hdr[10], hdr[11] = 0, 0
	crc.WriteEven(hdr[:])
	return checksum.NeverZero(crc.Sum16())
}

// ValidateChecksum recomputes the header checksum and compares it to
// the CRC field.
func (f Frame) ValidateChecksum() error {
	want := f.CRC()
	var crc checksum.CRC791
	var hdr [SizeHeader]byte
	copy(hdr[:], f.buf[:SizeHeader])
	hdr[10], hdr[11] = 0, 0
	crc.WriteEven(hdr[:])
	if checksum.NeverZero(crc.Sum16()) != want {
		return ErrChecksum
	}
	return nil
}

// CRCWriteTCPPseudo seeds crc with the IPv4 pseudo-header used for the
// TCP checksum: source addr, destination addr, zero byte, protocol,
// and TCP segment length.
func (f Frame) CRCWriteTCPPseudo(crc *checksum.CRC791, tcpLen uint16) {
	crc.WriteEven(f.SourceAddr())
	crc.WriteEven(f.DestinationAddr())
	crc.AddUint16(uint16(ProtoTCP))
	crc.AddUint16(tcpLen)
}

func (f Frame) String() string {
	src, dst := f.SourceAddr(), f.DestinationAddr()
	return fmt.Sprintf("IPv4 %d.%d.%d.%d -> %d.%d.%d.%d proto=%d ttl=%d len=%d",
		src[0], src[1], src[2], src[3], dst[0], dst[1], dst[2], dst[3],
		f.Protocol(), f.TTL(), f.TotalLength())
}
