// Package demux owns the TUN adapter and the connection table: it reads
// one IPv4 frame at a time, demultiplexes it to an existing flow or to
// passive open, and drives the resulting I/O (design §4.4).
package demux

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arunvijayshankar/trust/checksum"
	"github.com/arunvijayshankar/trust/flow"
	"github.com/arunvijayshankar/trust/iphdr"
	"github.com/arunvijayshankar/trust/metrics"
	"github.com/arunvijayshankar/trust/tcb"
	"github.com/arunvijayshankar/trust/tcphdr"
)

// Device is the TUN adapter contract the demultiplexer needs: one Read
// returns exactly one IPv4 frame (no packet-info prefix), one Write
// transmits exactly one.
type Device interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// maxFrame is the fixed read buffer size (design §4.4 step 1): large
// enough for any single IPv4 datagram this core will see on a typical
// TUN MTU.
const maxFrame = 1504

// Demultiplexer is the single-threaded packet-handling loop.
type Demultiplexer struct {
	Device  Device
	Table   *Table
	ISNGen  tcb.ISNGenerator
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Run reads frames from Device until ctx is cancelled or a read error
// occurs, which it returns unchanged. Cancellation is checked between
// reads, so a Read that is already blocked is not interrupted. Errors
// from writing outbound segments are not returned: the callers of the
// tcb segment writer and handleUnknownFlow's SendRST call discard them.
func (d *Demultiplexer) Run(ctx context.Context) error {
	buf := make([]byte, maxFrame)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.Device.Read(buf)
		if err != nil {
			return err
		}
		d.handleFrame(buf[:n])
	}
}

func (d *Demultiplexer) handleFrame(frame []byte) {
	ipIn, err := iphdr.NewFrame(frame)
	if err != nil {
		d.dropParse(err)
		return
	}
	if err := ipIn.ValidateSize(); err != nil {
		d.dropParse(err)
		return
	}
	if ipIn.Protocol() != iphdr.ProtoTCP {
		return
	}
	if err := ipIn.ValidateAddrs(); err != nil {
		d.dropParse(err)
		return
	}
	if err := ipIn.ValidateChecksum(); err != nil {
		d.dropParse(err)
		return
	}

	tcpIn, err := tcphdr.NewFrame(ipIn.Payload())
	if err != nil {
		d.dropParse(err)
		return
	}
	if err := tcpIn.ValidateSize(); err != nil {
		d.dropParse(err)
		return
	}
	if err := tcpIn.ValidatePorts(); err != nil {
		d.dropParse(err)
		return
	}
	var pseudo checksum.CRC791
	ipIn.CRCWriteTCPPseudo(&pseudo, uint16(len(ipIn.Payload())))
	if err := tcpIn.ValidateChecksum(pseudo); err != nil {
		d.dropParse(err)
		return
	}

	payload := tcpIn.Payload()
	seg := tcpIn.Segment(len(payload))

	var remoteAddr, localAddr [4]byte
	copy(remoteAddr[:], ipIn.SourceAddr())
	copy(localAddr[:], ipIn.DestinationAddr())
	q := flow.NewQuad(remoteAddr[:], localAddr[:], tcpIn.SourcePort(), tcpIn.DestinationPort())

	now := time.Now()

	c, ok := d.Table.Lookup(q)
	if !ok {
		d.handleUnknownFlow(q, ipIn, tcpIn, seg, now)
		return
	}

	if d.Metrics != nil {
		d.Metrics.SegmentsTotal.WithLabelValues(seg.Flags.String()).Inc()
	}
	remove, err := c.OnSegment(ipIn, tcpIn, seg, payload, now)
	if err != nil {
		d.log().Error("segment handling error", "quad", q.String(), "err", err)
	}
	if remove {
		d.Table.Remove(q)
		if d.Metrics != nil {
			d.Metrics.ConnectionsActive.Dec()
		}
	}
}

func (d *Demultiplexer) handleUnknownFlow(q flow.Quad, ipIn iphdr.Frame, tcpIn tcphdr.Frame, seg tcphdr.Segment, now time.Time) {
	c, err := tcb.Accept(q, ipIn, tcpIn, seg, d.Device, d.ISNGen, now, d.Logger)
	if err != nil {
		if errors.Is(err, tcb.ErrNoSYN) {
			tcb.SendRST(d.Device, ipIn, tcpIn, seg)
			if d.Metrics != nil {
				d.Metrics.RSTsSent.Inc()
			}
			return
		}
		d.log().Error("accept failed", "quad", q.String(), "err", err)
		return
	}
	d.Table.Insert(c)
	if d.Metrics != nil {
		d.Metrics.ConnectionsActive.Inc()
	}
}

func (d *Demultiplexer) dropParse(err error) {
	if d.Metrics != nil {
		d.Metrics.ParseErrors.Inc()
	}
	d.log().Debug("dropped malformed frame", "err", err)
}

func (d *Demultiplexer) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// SweepLoop periodically evicts TIME_WAIT connections older than
// timeout, closing the distilled core's documented "no true TIME_WAIT
// expiry" gap (design §9/§12). It runs until ctx is cancelled.
func SweepLoop(ctx context.Context, table *Table, timeout time.Duration, mcol *metrics.Collector, logger *slog.Logger) {
	tick := timeout / 4
	if tick < time.Second {
		tick = time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sweepOnce(table, now, timeout, mcol, logger)
		}
	}
}

// sweepOnce runs a single eviction pass and keeps ConnectionsActive in
// sync with the connections it removes from table.
func sweepOnce(table *Table, now time.Time, timeout time.Duration, mcol *metrics.Collector, logger *slog.Logger) int {
	n := table.EvictExpiredTimeWait(now, timeout)
	if n == 0 {
		return 0
	}
	if mcol != nil {
		mcol.ConnectionsActive.Sub(float64(n))
	}
	if logger != nil {
		logger.Debug("evicted expired TIME_WAIT connections", "count", n)
	}
	return n
}
