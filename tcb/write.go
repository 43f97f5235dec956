package tcb

import (
	"github.com/arunvijayshankar/trust/checksum"
	"github.com/arunvijayshankar/trust/iphdr"
	"github.com/arunvijayshankar/trust/seqnum"
	"github.com/arunvijayshankar/trust/tcphdr"
)

// mtu bounds the size of a single emitted frame; payload is truncated
// to fit. This repository advertises no path-MTU discovery.
const mtu = 1500

// finalizeAndSend fills in total length and both checksums of a
// just-built IPv4+TCP frame, then hands it to sender in one call.
func finalizeAndSend(sender Sender, buf []byte, payloadLen int) (int, error) {
	ipOut, _ := iphdr.NewFrame(buf)
	ipOut.SetTotalLength(uint16(len(buf)))
	ipOut.SetCRC(0)
	ipOut.SetCRC(ipOut.CalculateHeaderCRC())

	tcpOut, _ := tcphdr.NewFrame(buf[iphdr.SizeHeader:])
	tcpOut.SetCRC(0)
	var crc checksum.CRC791
	ipOut.CRCWriteTCPPseudo(&crc, uint16(tcphdr.SizeHeader+payloadLen))
	tcpOut.SetCRC(checksum.NeverZero(crc.PayloadSum16(buf[iphdr.SizeHeader:])))

	return sender.Write(buf)
}

// writeSegment is the segment writer (design §4.2): it sets SEQ/ACK from
// the connection's current send/receive state, serializes and checksums
// one IPv4+TCP frame from the cached templates plus payload, transmits
// it, and advances SND.NXT by the bytes actually written plus one for
// SYN and one for FIN if either flag was set on this emission.
func (c *Connection) writeSegment(flags tcphdr.Flags, payload []byte) (int, error) {
	maxPayload := mtu - iphdr.SizeHeader - tcphdr.SizeHeader
	if len(payload) > maxPayload {
		payload = payload[:maxPayload]
	}

	seg := tcphdr.Segment{
		SEQ:     c.snd.NXT,
		ACK:     c.rcv.NXT,
		DataLen: seqnum.Size(len(payload)),
		WND:     c.rcv.WND,
		Flags:   flags,
	}

	buf := make([]byte, iphdr.SizeHeader+tcphdr.SizeHeader+len(payload))
	copy(buf[:iphdr.SizeHeader], c.ipTemplate[:])
	copy(buf[iphdr.SizeHeader:iphdr.SizeHeader+tcphdr.SizeHeader], c.tcpTemplate[:])
	copy(buf[iphdr.SizeHeader+tcphdr.SizeHeader:], payload)

	tcpOut, _ := tcphdr.NewFrame(buf[iphdr.SizeHeader:])
	tcpOut.SetSegment(seg)

	n, err := finalizeAndSend(c.sender, buf, len(payload))
	if err != nil {
		return 0, err
	}

	adv := seqnum.Size(len(payload))
	if flags.Has(tcphdr.FlagSYN) {
		adv++
	}
	if flags.Has(tcphdr.FlagFIN) {
		adv++
	}
	c.snd.NXT = c.snd.NXT.Add(adv)
	c.debug("writeSegment", "flags", flags.String(), "seq", seg.SEQ, "ack", seg.ACK, "n", n)
	return n, nil
}

// SendRST builds and transmits a standalone RST in response to an
// unacceptable or unsynchronized segment, per RFC 793 §3.4. It does not
// touch any live Connection's TCB: it derives SEQ/ACK purely from the
// offending inbound segment, since a RST here is not associated with an
// established send/receive sequence space.
//
// If the offending segment carried ACK, the RST's SEQ is SEG.ACK and it
// carries no ACK flag. Otherwise the RST's SEQ is 0 and it carries
// ACK = SEG.SEQ + SEG.LEN.
func SendRST(sender Sender, ipIn iphdr.Frame, tcpIn tcphdr.Frame, seg tcphdr.Segment) (int, error) {
	var ipBuf [iphdr.SizeHeader]byte
	ipOut, _ := iphdr.NewFrame(ipBuf[:])
	ipOut.SetVersion4IHL(iphdr.SizeHeader / 4)
	ipOut.SetProtocol(iphdr.ProtoTCP)
	ipOut.SetTTL(64)
	var srcAddr, dstAddr [4]byte
	copy(srcAddr[:], ipIn.DestinationAddr())
	copy(dstAddr[:], ipIn.SourceAddr())
	ipOut.SetSourceAddr(srcAddr)
	ipOut.SetDestinationAddr(dstAddr)

	rst := tcphdr.Segment{Flags: tcphdr.FlagRST}
	if seg.Flags.Has(tcphdr.FlagACK) {
		rst.SEQ = seg.ACK
	} else {
		rst.SEQ = 0
		rst.ACK = seg.SEQ.Add(seg.Len())
		rst.Flags |= tcphdr.FlagACK
	}

	buf := make([]byte, iphdr.SizeHeader+tcphdr.SizeHeader)
	copy(buf[:iphdr.SizeHeader], ipBuf[:])
	tcpOut, _ := tcphdr.NewFrame(buf[iphdr.SizeHeader:])
	tcpOut.SetSourcePort(tcpIn.DestinationPort())
	tcpOut.SetDestinationPort(tcpIn.SourcePort())
	tcpOut.SetSegment(rst)

	return finalizeAndSend(sender, buf, 0)
}
