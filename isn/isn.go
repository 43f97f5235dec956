// Package isn generates initial sequence numbers, resolving the
// distilled core's hardcoded-ISS=0 placeholder with an RFC 6528-style
// randomized generator: a keyed hash of the connection's flow tuple
// plus a coarse time counter, so a reused quad does not reuse the exact
// same ISN shortly after a connection closes.
package isn

import (
	"encoding/binary"
	"time"

	"github.com/arunvijayshankar/trust/flow"
	"github.com/arunvijayshankar/trust/seqnum"
	"golang.org/x/crypto/blake2b"
)

// tick is the resolution at which the time component of the hash
// advances, following RFC 6528 §3's recommendation of a roughly
// 4-microsecond-to-second granularity clock; a quarter second is coarse
// enough to avoid leaking wall-clock precision while still rotating ISNs
// over a connection's lifetime.
const tick = 250 * time.Millisecond

// Generator produces a pseudo-random ISN for a given flow, keyed by a
// secret established at process start so the sequence is unpredictable
// to an off-path attacker.
type Generator struct {
	key [32]byte
}

// NewGenerator builds a Generator from 32 bytes of secret key material
// (e.g. read from crypto/rand at process startup).
func NewGenerator(key [32]byte) *Generator {
	return &Generator{key: key}
}

// ISN computes the initial sequence number for q at time now.
func (g *Generator) ISN(q flow.Quad, now time.Time) seqnum.Value {
	var msg [12 + 8]byte
	copy(msg[0:4], q.RemoteAddr[:])
	copy(msg[4:8], q.LocalAddr[:])
	binary.BigEndian.PutUint16(msg[8:10], q.RemotePort)
	binary.BigEndian.PutUint16(msg[10:12], q.LocalPort)
	binary.BigEndian.PutUint64(msg[12:20], uint64(now.UnixNano()/int64(tick)))

	mac, err := blake2b.New256(g.key[:])
	if err != nil {
		// blake2b.New256 only errors on an oversized key, which
		// cannot happen with a fixed 32-byte key.
		panic(err)
	}
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	return seqnum.Value(binary.BigEndian.Uint32(sum[:4]))
}

// Zero is a deterministic generator returning 0 for every flow, used by
// tests that pin the documented scenario arithmetic.
type Zero struct{}

// ISN always returns 0.
func (Zero) ISN(flow.Quad, time.Time) seqnum.Value { return 0 }
