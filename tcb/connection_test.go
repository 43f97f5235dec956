package tcb

import (
	"testing"
	"time"

	"github.com/arunvijayshankar/trust/flow"
	"github.com/arunvijayshankar/trust/iphdr"
	"github.com/arunvijayshankar/trust/isn"
	"github.com/arunvijayshankar/trust/tcphdr"
)

var (
	localAddr  = [4]byte{10, 0, 0, 1}
	remoteAddr = [4]byte{10, 0, 0, 2}
	localPort  = uint16(443)
	remotePort = uint16(40000)
)

// fakeSender records every frame written to it, decoded for assertions.
type fakeSender struct {
	sent []capturedFrame
}

type capturedFrame struct {
	ip  iphdr.Frame
	tcp tcphdr.Frame
	seg tcphdr.Segment
}

func (f *fakeSender) Write(buf []byte) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	ipFrame, err := iphdr.NewFrame(cp)
	if err != nil {
		return 0, err
	}
	tcpFrame, err := tcphdr.NewFrame(ipFrame.Payload())
	if err != nil {
		return 0, err
	}
	seg := tcpFrame.Segment(len(tcpFrame.Payload()))
	f.sent = append(f.sent, capturedFrame{ip: ipFrame, tcp: tcpFrame, seg: seg})
	return len(buf), nil
}

func (f *fakeSender) last() capturedFrame {
	return f.sent[len(f.sent)-1]
}

func newInbound(t *testing.T, seg tcphdr.Segment, payload []byte) (iphdr.Frame, tcphdr.Frame) {
	t.Helper()
	buf := make([]byte, iphdr.SizeHeader+tcphdr.SizeHeader+len(payload))
	ipF, err := iphdr.NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	ipF.SetVersion4IHL(iphdr.SizeHeader / 4)
	ipF.SetProtocol(iphdr.ProtoTCP)
	ipF.SetTTL(64)
	ipF.SetSourceAddr(remoteAddr)
	ipF.SetDestinationAddr(localAddr)
	ipF.SetTotalLength(uint16(len(buf)))

	tcpF, err := tcphdr.NewFrame(buf[iphdr.SizeHeader:])
	if err != nil {
		t.Fatal(err)
	}
	tcpF.SetSourcePort(remotePort)
	tcpF.SetDestinationPort(localPort)
	tcpF.SetSegment(seg)
	copy(tcpF.Payload(), payload)
	// re-read segment view so DataLen reflects the written payload.
	seg = tcpF.Segment(len(payload))
	return ipF, tcpF
}

func quad() flow.Quad {
	return flow.NewQuad(remoteAddr[:], localAddr[:], remotePort, localPort)
}

// TestScenarios walks documented scenarios 1-4 end to end against a
// single evolving connection, exactly mirroring the worked arithmetic in
// SPEC_FULL.md §8. Scenarios 5-10 have their own tests below.
func TestScenarios(t *testing.T) {
	now := time.Unix(0, 0)
	sender := &fakeSender{}

	// Scenario 1: passive open.
	synSeg := tcphdr.Segment{SEQ: 1000, WND: 4096, Flags: tcphdr.FlagSYN}
	ipIn, tcpIn := newInbound(t, synSeg, nil)
	conn, err := Accept(quad(), ipIn, tcpIn, synSeg, sender, isn.Zero{}, now, nil)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if conn.state != StateSynRcvd {
		t.Fatalf("want SYN_RCVD, got %s", conn.state)
	}
	if conn.rcv.IRS != 1000 || conn.rcv.NXT != 1001 {
		t.Fatalf("bad RCV space: %+v", conn.rcv)
	}
	if conn.snd.ISS != 0 || conn.snd.NXT != 1 {
		t.Fatalf("bad SND space: %+v", conn.snd)
	}
	got := sender.last().seg
	if got.Flags != tcphdr.FlagSYN|tcphdr.FlagACK || got.SEQ != 0 || got.ACK != 1001 {
		t.Fatalf("unexpected SYN-ACK: %+v", got)
	}

	// Scenario 2: handshake completion -> active close fires.
	ackSeg := tcphdr.Segment{SEQ: 1001, ACK: 1, Flags: tcphdr.FlagACK}
	ipIn, tcpIn = newInbound(t, ackSeg, nil)
	if _, err := conn.OnSegment(ipIn, tcpIn, ackSeg, nil, now); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if conn.state != StateFinWait1 {
		t.Fatalf("want FIN_WAIT_1, got %s", conn.state)
	}
	if conn.snd.NXT != 2 {
		t.Fatalf("want SND.NXT=2, got %d", conn.snd.NXT)
	}
	got = sender.last().seg
	if got.Flags != tcphdr.FlagFIN|tcphdr.FlagACK || got.SEQ != 1 || got.ACK != 1001 {
		t.Fatalf("unexpected FIN-ACK: %+v", got)
	}

	// Scenario 3: FIN ACK -> FIN_WAIT_2.
	ackSeg = tcphdr.Segment{SEQ: 1001, ACK: 2, Flags: tcphdr.FlagACK}
	ipIn, tcpIn = newInbound(t, ackSeg, nil)
	if _, err := conn.OnSegment(ipIn, tcpIn, ackSeg, nil, now); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if conn.snd.UNA != 2 {
		t.Fatalf("want SND.UNA=2, got %d", conn.snd.UNA)
	}
	if conn.state != StateFinWait2 {
		t.Fatalf("want FIN_WAIT_2, got %s", conn.state)
	}

	// Scenario 4: peer close -> TIME_WAIT.
	finSeg := tcphdr.Segment{SEQ: 1001, ACK: 2, Flags: tcphdr.FlagFIN | tcphdr.FlagACK}
	ipIn, tcpIn = newInbound(t, finSeg, nil)
	if _, err := conn.OnSegment(ipIn, tcpIn, finSeg, nil, now); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if conn.rcv.NXT != 1002 {
		t.Fatalf("want RCV.NXT=1002, got %d", conn.rcv.NXT)
	}
	got = sender.last().seg
	if got.Flags != tcphdr.FlagACK || got.SEQ != 2 || got.ACK != 1002 {
		t.Fatalf("unexpected pure ACK: %+v", got)
	}
	if conn.state != StateTimeWait {
		t.Fatalf("want TIME_WAIT, got %s", conn.state)
	}
}

// TestOutOfWindowSegmentRejected is scenario 5.
func TestOutOfWindowSegmentRejected(t *testing.T) {
	sender := &fakeSender{}
	conn := &Connection{
		Quad:   quad(),
		state:  StateEstablished,
		snd:    sendSpace{ISS: 0, UNA: 1, NXT: 1, WND: 10},
		rcv:    recvSpace{IRS: 1000, NXT: 1001, WND: 4096},
		sender: sender,
	}
	seg := tcphdr.Segment{SEQ: 9000, ACK: 1, DataLen: 1, Flags: tcphdr.FlagACK}
	ipIn, tcpIn := newInbound(t, seg, []byte{0xAA})
	if _, err := conn.OnSegment(ipIn, tcpIn, seg, []byte{0xAA}, time.Unix(0, 0)); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	got := sender.last().seg
	if got.Flags != tcphdr.FlagACK || got.SEQ != 1 || got.ACK != 1001 {
		t.Fatalf("unexpected response to out-of-window segment: %+v", got)
	}
	if conn.state != StateEstablished {
		t.Fatalf("state must not change, got %s", conn.state)
	}
}

// TestWraparoundAcceptance is scenario 6.
func TestWraparoundAcceptance(t *testing.T) {
	sender := &fakeSender{}
	conn := &Connection{
		Quad:   quad(),
		state:  StateEstablished,
		snd:    sendSpace{ISS: 0, UNA: 2, NXT: 2, WND: 10},
		rcv:    recvSpace{IRS: 1000, NXT: 0xFFFFFFF0, WND: 32},
		sender: sender,
	}
	seg := tcphdr.Segment{SEQ: 0xFFFFFFF0, ACK: 2, DataLen: 16, Flags: tcphdr.FlagACK}
	payload := make([]byte, 16)
	ipIn, tcpIn := newInbound(t, seg, payload)
	if _, err := conn.OnSegment(ipIn, tcpIn, seg, payload, time.Unix(0, 0)); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if conn.rcv.NXT != 0 {
		t.Fatalf("want RCV.NXT=0 after wraparound, got %d", conn.rcv.NXT)
	}
}

// TestPeerInitiatedCloseWithoutConsumer covers supplemented scenario 7+8:
// a FIN arriving in ESTABLISHED with no consumer attached drives
// CLOSE_WAIT -> LAST_ACK -> removed, in two handling passes.
func TestPeerInitiatedCloseWithoutConsumer(t *testing.T) {
	sender := &fakeSender{}
	now := time.Unix(0, 0)
	conn := &Connection{
		Quad:   quad(),
		state:  StateEstablished,
		snd:    sendSpace{ISS: 0, UNA: 1, NXT: 1, WND: 10},
		rcv:    recvSpace{IRS: 1000, NXT: 1001, WND: 4096},
		sender: sender,
	}

	finSeg := tcphdr.Segment{SEQ: 1001, ACK: 1, Flags: tcphdr.FlagFIN | tcphdr.FlagACK}
	ipIn, tcpIn := newInbound(t, finSeg, nil)
	if _, err := conn.OnSegment(ipIn, tcpIn, finSeg, nil, now); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if conn.state != StateLastAck {
		t.Fatalf("want LAST_ACK (no consumer closes immediately), got %s", conn.state)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("want 2 outbound segments (ack-of-fin, then our own fin), got %d", len(sender.sent))
	}
	if sender.sent[0].seg.Flags != tcphdr.FlagACK {
		t.Fatalf("first segment should be a pure ack, got %s", sender.sent[0].seg.Flags)
	}
	if sender.sent[1].seg.Flags != tcphdr.FlagFIN|tcphdr.FlagACK {
		t.Fatalf("second segment should be our FIN,ACK got %s", sender.sent[1].seg.Flags)
	}

	finalAck := tcphdr.Segment{SEQ: 1002, ACK: conn.snd.NXT, Flags: tcphdr.FlagACK}
	ipIn, tcpIn = newInbound(t, finalAck, nil)
	remove, err := conn.OnSegment(ipIn, tcpIn, finalAck, nil, now)
	if err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if !remove {
		t.Fatal("expected connection to be fully closed after LAST_ACK is acked")
	}
}

// TestTimeWaitIdleSince checks the idle time the TIME_WAIT sweep of
// supplemented scenario 9 relies on; the eviction itself is tested in
// package demux.
func TestTimeWaitIdleSince(t *testing.T) {
	conn := &Connection{Quad: quad(), state: StateTimeWait, lastActivity: time.Unix(0, 0)}
	now := time.Unix(0, 0).Add(2 * time.Minute)
	if conn.IdleSince(now) < time.Minute {
		t.Fatalf("expected idle time >= 1 minute, got %s", conn.IdleSince(now))
	}
}

// TestPortClosedRST covers supplemented scenario 10: a non-SYN segment
// to an unknown quad gets a RST, not a new connection.
func TestPortClosedRST(t *testing.T) {
	sender := &fakeSender{}
	seg := tcphdr.Segment{SEQ: 55, ACK: 10, Flags: tcphdr.FlagACK}
	ipIn, tcpIn := newInbound(t, seg, nil)
	_, err := Accept(quad(), ipIn, tcpIn, seg, sender, isn.Zero{}, time.Unix(0, 0), nil)
	if err != ErrNoSYN {
		t.Fatalf("want ErrNoSYN, got %v", err)
	}
	if _, err := SendRST(sender, ipIn, tcpIn, seg); err != nil {
		t.Fatalf("SendRST: %v", err)
	}
	got := sender.last().seg
	if got.Flags != tcphdr.FlagRST {
		t.Fatalf("want bare RST, got %s", got.Flags)
	}
	if got.SEQ != seg.ACK {
		t.Fatalf("want RST.SEQ == SEG.ACK (%d), got %d", seg.ACK, got.SEQ)
	}
}

func TestSynRcvdUnacceptableAckSendsRST(t *testing.T) {
	sender := &fakeSender{}
	now := time.Unix(0, 0)
	synSeg := tcphdr.Segment{SEQ: 1000, WND: 4096, Flags: tcphdr.FlagSYN}
	ipIn, tcpIn := newInbound(t, synSeg, nil)
	conn, err := Accept(quad(), ipIn, tcpIn, synSeg, sender, isn.Zero{}, now, nil)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	badAck := tcphdr.Segment{SEQ: 1001, ACK: 999, Flags: tcphdr.FlagACK}
	ipIn, tcpIn = newInbound(t, badAck, nil)
	if _, err := conn.OnSegment(ipIn, tcpIn, badAck, nil, now); err != nil {
		t.Fatalf("OnSegment: %v", err)
	}
	if conn.state != StateSynRcvd {
		t.Fatalf("state must not advance on bad ack, got %s", conn.state)
	}
	got := sender.last().seg
	if got.Flags != tcphdr.FlagRST {
		t.Fatalf("want RST in response to unacceptable ack in SYN_RCVD, got %s", got.Flags)
	}
}
