package tcb

import (
	"time"

	"github.com/arunvijayshankar/trust/iphdr"
	"github.com/arunvijayshankar/trust/seqnum"
	"github.com/arunvijayshankar/trust/tcphdr"
)

// acceptable implements the Step 1 sequence-number acceptance matrix
// (design §4.3): whether seg's sequence space overlaps our receive
// window at all.
func (c *Connection) acceptable(seg tcphdr.Segment) bool {
	segLen := seg.Len()
	end := c.rcv.end()
	switch {
	case segLen == 0 && c.rcv.WND == 0:
		return seg.SEQ == c.rcv.NXT
	case segLen == 0:
		return seqnum.Between(c.rcv.NXT-1, seg.SEQ, end)
	case c.rcv.WND == 0:
		return false
	default:
		return seqnum.Between(c.rcv.NXT-1, seg.SEQ, end) ||
			seqnum.Between(c.rcv.NXT-1, seg.SEQ.Add(segLen-1), end)
	}
}

// OnSegment is the connection state machine's single entry point for an
// inbound segment addressed to an already-open flow (design §4.3,
// "On-segment handling"). It returns remove=true when the connection has
// reached CLOSED and the caller (the demultiplexer) must drop it from
// the connection table.
func (c *Connection) OnSegment(ipIn iphdr.Frame, tcpIn tcphdr.Frame, seg tcphdr.Segment, payload []byte, now time.Time) (remove bool, err error) {
	if !c.acceptable(seg) {
		c.writeSegment(tcphdr.FlagACK, nil)
		return false, nil
	}

	segLen := seg.Len()
	if segLen > 0 {
		c.rcv.NXT = seg.SEQ.Add(segLen)
	}

	if !seg.Flags.Has(tcphdr.FlagACK) {
		return false, nil
	}
	ackn := seg.ACK
	state := c.State()

	switch state {
	case StateSynRcvd:
		if !seqnum.Between(c.snd.UNA-1, ackn, c.snd.NXT+1) {
			SendRST(c.sender, ipIn, tcpIn, seg)
			return false, nil
		}
		c.snd.UNA = ackn
		c.setState(StateEstablished, now)
		c.afterEstablishedAck(payload, now)

	case StateEstablished:
		if !c.updateUNA(ackn) {
			return false, nil
		}
		if seg.Flags.Has(tcphdr.FlagFIN) {
			if c.consumer != nil && len(payload) > 0 {
				c.consumer.Deliver(payload)
			}
			c.writeSegment(tcphdr.FlagACK, nil)
			c.setState(StateCloseWait, now)
			c.maybeCloseFromCloseWait(now)
		} else {
			c.afterEstablishedAck(payload, now)
		}

	case StateFinWait1:
		if !c.updateUNA(ackn) {
			return false, nil
		}
		finAcked := c.snd.UNA == c.snd.ISS.Add(2)
		switch {
		case seg.Flags.Has(tcphdr.FlagFIN) && finAcked:
			c.writeSegment(tcphdr.FlagACK, nil)
			c.setState(StateTimeWait, now)
		case seg.Flags.Has(tcphdr.FlagFIN):
			c.writeSegment(tcphdr.FlagACK, nil)
			c.setState(StateClosing, now)
		case finAcked:
			c.setState(StateFinWait2, now)
		}

	case StateFinWait2:
		if !c.updateUNA(ackn) {
			return false, nil
		}
		if seg.Flags.Has(tcphdr.FlagFIN) {
			c.writeSegment(tcphdr.FlagACK, nil)
			c.setState(StateTimeWait, now)
		}

	case StateClosing:
		if !c.updateUNA(ackn) {
			return false, nil
		}
		if c.snd.UNA == c.snd.ISS.Add(2) {
			c.setState(StateTimeWait, now)
		}

	case StateCloseWait:
		if !c.updateUNA(ackn) {
			return false, nil
		}
		c.maybeCloseFromCloseWait(now)

	case StateLastAck:
		c.updateUNA(ackn)
		if c.snd.UNA == c.snd.NXT {
			return true, nil
		}

	case StateTimeWait:
		// Fully synchronized and quiescent; nothing left to drive.

	default:
		c.errorf("unreachable state/flag combination", "state", state.String(), "flags", seg.Flags.String())
		return false, ErrUnreachableState
	}

	return false, nil
}

// updateUNA applies the Step 2 ACK-acceptance rule for the synchronized
// states (design §4.3). A duplicate ACK exactly at SND.UNA is accepted
// as a no-op rather than dropped — see DESIGN.md for why the literal
// "NOT between(UNA, ack, NXT+1)" reading would otherwise drop the exact
// ACK that scenario 4 (peer close) depends on. Returns false if the
// segment must be dropped as stale or ahead of what we've sent.
func (c *Connection) updateUNA(ackn seqnum.Value) bool {
	if ackn == c.snd.UNA {
		return true
	}
	if !seqnum.Between(c.snd.UNA, ackn, c.snd.NXT+1) {
		return false
	}
	c.snd.UNA = ackn
	return true
}

// afterEstablishedAck implements the ESTABLISHED branch of Step 3 when
// no peer-initiated FIN was present on this segment: deliver payload to
// an attached Consumer, and only initiate our own active close once the
// consumer is done (or immediately, matching the no-application-layer
// default, when no Consumer is attached).
func (c *Connection) afterEstablishedAck(payload []byte, now time.Time) {
	if c.consumer != nil {
		if len(payload) > 0 {
			c.consumer.Deliver(payload)
		}
		if !c.consumer.Closed() {
			return
		}
	}
	c.writeSegment(tcphdr.FlagFIN|tcphdr.FlagACK, nil)
	c.setState(StateFinWait1, now)
}

// maybeCloseFromCloseWait mirrors a peer-initiated close once our own
// side is ready to close too, moving CLOSE_WAIT -> LAST_ACK.
func (c *Connection) maybeCloseFromCloseWait(now time.Time) {
	if c.consumer != nil && !c.consumer.Closed() {
		return
	}
	c.writeSegment(tcphdr.FlagFIN|tcphdr.FlagACK, nil)
	c.setState(StateLastAck, now)
}
