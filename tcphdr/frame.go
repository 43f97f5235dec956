// Package tcphdr implements a minimal TCP (RFC 793) header codec and the
// flag bitmask, with no TCP options support — matching this repository's
// explicit non-goal of options processing.
package tcphdr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/arunvijayshankar/trust/checksum"
	"github.com/arunvijayshankar/trust/seqnum"
)

// SizeHeader is the fixed TCP header length in bytes (no options).
const SizeHeader = 20

var (
	ErrShortBuffer = errors.New("tcphdr: buffer shorter than header")
	ErrBadOffset   = errors.New("tcphdr: data offset inconsistent with buffer")
	ErrZeroSource  = errors.New("tcphdr: zero source port")
	ErrZeroDest    = errors.New("tcphdr: zero destination port")
	ErrChecksum    = errors.New("tcphdr: checksum mismatch")
)

// Flags is the 6-bit (plus 3 ECN/NS reserved) TCP flag field.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
	FlagNS
)

const flagMask = FlagFIN | FlagSYN | FlagRST | FlagPSH | FlagACK | FlagURG | FlagECE | FlagCWR | FlagNS

// Mask clears any bits outside the defined flag set.
func (f Flags) Mask() Flags { return f & flagMask }

// Has reports whether all bits in mask are set in f.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// HasAny reports whether any bit in mask is set in f.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "<none>"
	}
	var sb []byte
	add := func(name string, bit Flags) {
		if f.HasAny(bit) {
			if len(sb) > 0 {
				sb = append(sb, ',')
			}
			sb = append(sb, name...)
		}
	}
	add("SYN", FlagSYN)
	add("ACK", FlagACK)
	add("FIN", FlagFIN)
	add("RST", FlagRST)
	add("PSH", FlagPSH)
	add("URG", FlagURG)
	add("ECE", FlagECE)
	add("CWR", FlagCWR)
	add("NS", FlagNS)
	return string(sb)
}

// Segment is the logical (header-decoded) view of one TCP segment used
// throughout the connection state machine, independent of its wire
// encoding.
type Segment struct {
	SEQ     seqnum.Value
	ACK     seqnum.Value
	DataLen seqnum.Size
	WND     uint16
	Flags   Flags
}

// Len returns the logical sequence-space length of the segment: payload
// bytes plus one for SYN plus one for FIN.
func (s Segment) Len() seqnum.Size {
	n := s.DataLen
	if s.Flags.HasAny(FlagSYN) {
		n++
	}
	if s.Flags.HasAny(FlagFIN) {
		n++
	}
	return n
}

// Last returns the sequence number of the last octet occupied by this
// segment (SEQ if Len()==0).
func (s Segment) Last() seqnum.Value {
	if s.Len() == 0 {
		return s.SEQ
	}
	return s.SEQ.Add(s.Len() - 1)
}

func (s Segment) String() string {
	return fmt.Sprintf("%s seq=%d ack=%d len=%d wnd=%d", s.Flags, s.SEQ, s.ACK, s.Len(), s.WND)
}

// Frame is a view over a byte slice holding one TCP segment.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as a TCP Frame. buf must be at least SizeHeader
// bytes.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < SizeHeader {
		return Frame{}, ErrShortBuffer
	}
	return Frame{buf: buf}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SourcePort() uint16      { return binary.BigEndian.Uint16(f.buf[0:2]) }
func (f Frame) SetSourcePort(v uint16)  { binary.BigEndian.PutUint16(f.buf[0:2], v) }
func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) SetDestinationPort(v uint16) {
	binary.BigEndian.PutUint16(f.buf[2:4], v)
}

func (f Frame) Seq() seqnum.Value     { return seqnum.Value(binary.BigEndian.Uint32(f.buf[4:8])) }
func (f Frame) SetSeq(v seqnum.Value) { binary.BigEndian.PutUint32(f.buf[4:8], uint32(v)) }

func (f Frame) Ack() seqnum.Value     { return seqnum.Value(binary.BigEndian.Uint32(f.buf[8:12])) }
func (f Frame) SetAck(v seqnum.Value) { binary.BigEndian.PutUint32(f.buf[8:12], uint32(v)) }

// OffsetAndFlags returns the data offset (in 32-bit words) and the flag
// bitmask.
func (f Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(f.buf[12:14])
	return uint8(v >> 12), Flags(v).Mask()
}

func (f Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(f.buf[12:14], v)
}

// HeaderLength returns the header length in bytes from the offset field.
func (f Frame) HeaderLength() int {
	offset, _ := f.OffsetAndFlags()
	return int(offset) * 4
}

func (f Frame) WindowSize() uint16     { return binary.BigEndian.Uint16(f.buf[14:16]) }
func (f Frame) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(f.buf[14:16], v) }

func (f Frame) CRC() uint16     { return binary.BigEndian.Uint16(f.buf[16:18]) }
func (f Frame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[16:18], v) }

func (f Frame) UrgentPtr() uint16     { return binary.BigEndian.Uint16(f.buf[18:20]) }
func (f Frame) SetUrgentPtr(v uint16) { binary.BigEndian.PutUint16(f.buf[18:20], v) }

// Payload returns the bytes after the (options-free) header.
func (f Frame) Payload() []byte {
	return f.buf[f.HeaderLength():]
}

// Segment decodes the frame into a logical Segment, given the number of
// payload bytes that follow the header.
func (f Frame) Segment(payloadLen int) Segment {
	_, flags := f.OffsetAndFlags()
	return Segment{
		SEQ:     f.Seq(),
		ACK:     f.Ack(),
		DataLen: seqnum.Size(payloadLen),
		WND:     f.WindowSize(),
		Flags:   flags,
	}
}

// SetSegment writes seg's sequence/ack/flags/window into the header,
// with a fixed options-free offset of 5 words.
func (f Frame) SetSegment(seg Segment) {
	f.SetSeq(seg.SEQ)
	f.SetAck(seg.ACK)
	f.SetOffsetAndFlags(SizeHeader/4, seg.Flags)
	f.SetWindowSize(seg.WND)
}

// ClearHeader zeros the fixed header portion.
func (f Frame) ClearHeader() {
	for i := range f.buf[:SizeHeader] {
		f.buf[i] = 0
	}
}

// ValidateSize checks the header-length field against the buffer.
func (f Frame) ValidateSize() error {
	if len(f.buf) < SizeHeader {
		return ErrShortBuffer
	}
	off := f.HeaderLength()
	if off < SizeHeader || off > len(f.buf) {
		return ErrBadOffset
	}
	return nil
}

// ValidatePorts rejects zero source/destination ports.
func (f Frame) ValidatePorts() error {
	if f.SourcePort() == 0 {
		return ErrZeroSource
	}
	if f.DestinationPort() == 0 {
		return ErrZeroDest
	}
	return nil
}

// ValidateChecksum recomputes the TCP checksum over the given IPv4
// pseudo-header seed plus this frame's header (including any option
// bytes) and payload, and compares it to the CRC field.
func (f Frame) ValidateChecksum(pseudo checksum.CRC791) error {
	want := f.CRC()
	crc := pseudo
	hdr := make([]byte, SizeHeader)
	copy(hdr, f.buf[:SizeHeader])
	hdr[16], hdr[17] = 0, 0
	crc.WriteEven(hdr)
	got := checksum.NeverZero(crc.PayloadSum16(f.buf[SizeHeader:]))
	if got != want {
		return ErrChecksum
	}
	return nil
}

func (f Frame) String() string {
	seg := f.Segment(len(f.Payload()))
	return fmt.Sprintf("TCP :%d -> :%d %s", f.SourcePort(), f.DestinationPort(), seg)
}
