// Package seqnum implements modulo-2³² TCP sequence number arithmetic
// as defined by RFC 793 §3.3.
package seqnum

// Value is a 32-bit TCP sequence or acknowledgment number. Arithmetic on
// Value wraps around the 32-bit circle; comparisons must go through
// Between, never numeric < or >.
type Value uint32

// Size is a count of octets on the sequence-number circle (a window size
// or segment length), also modulo-2³².
type Size uint32

// Add returns v+n on the sequence-number circle.
func (v Value) Add(n Size) Value { return v + Value(n) }

// Sub returns the forward distance from v to w, i.e. the Size that
// satisfies v.Add(v.Sub(w)) == w... actually returns w-v mod 2^32,
// the number of steps to walk from v to reach w going forward.
func (v Value) Sub(w Value) Size { return Size(w - v) }

// Between reports whether x lies strictly on the clockwise arc from
// start (exclusive) to end (exclusive) on the 32-bit sequence circle.
//
// Contract:
//   - start == x: always false.
//   - start < x (numerically): true iff end is NOT in the closed
//     interval [start, x].
//   - start > x (numerically): true iff end lies strictly between x and
//     start (numerically).
//
// This is the sole primitive used for both receive-window acceptance
// and ACK-window acceptance; it must tolerate wraparound, e.g.
// Between(0xFFFFFFF0, 0x00000005, 0x00000010) == true.
func Between(start, x, end Value) bool {
	if start == x {
		return false
	}
	if start < x {
		return !(start <= end && end <= x)
	}
	return x < end && end < start
}
