package endpoint

import (
	"encoding/binary"
	"io"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

// frameType tags the small control/data protocol this package runs over a
// TCP or UDP socket to simulate one-sided remote-memory writes (see
// SPEC_FULL.md §4, "Concrete backend realisation"). None of this framing is
// visible above internal/endpoint.
type frameType byte

const (
	frameConnReq   frameType = iota // body: 8-byte initiator identity
	frameConnAck                    // body: 8-byte target identity
	frameShutdown                   // body: empty
	frameWrite                      // body: 8-byte rkey, 8-byte offset, 4-byte imm data, payload
	frameRecvReady                  // body: 8-byte token (CQ-data-via-recv priming, SHM backend)
)

// frame is one decoded wire message.
type frame struct {
	Type     frameType
	Identity uint64
	RKey     uint64
	Offset   uint64
	ImmData  uint32
	Token    uint64
	Payload  []byte
}

const maxFrameLen = 64 << 20 // 64 MiB, generous headroom over one grain's slice payload

// writeFrame serialises and writes f to w. Layout: 4-byte big-endian total
// body length, 1-byte type, then the type-specific body below.
func writeFrame(w io.Writer, f frame) error {
	var body []byte
	switch f.Type {
	case frameConnReq, frameConnAck:
		body = make([]byte, 8)
		binary.BigEndian.PutUint64(body, f.Identity)
	case frameShutdown:
		body = nil
	case frameWrite:
		body = make([]byte, 20+len(f.Payload))
		binary.BigEndian.PutUint64(body[0:8], f.RKey)
		binary.BigEndian.PutUint64(body[8:16], f.Offset)
		binary.BigEndian.PutUint32(body[16:20], f.ImmData)
		copy(body[20:], f.Payload)
	case frameRecvReady:
		body = make([]byte, 8)
		binary.BigEndian.PutUint64(body, f.Token)
	default:
		return ferrors.New(ferrors.StatusInvalidArg, "writeFrame", "unknown frame type")
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(body)+1))
	header[4] = byte(f.Type)
	if _, err := w.Write(header); err != nil {
		return ferrors.Wrap(ferrors.StatusInternal, "writeFrame", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return ferrors.Wrap(ferrors.StatusInternal, "writeFrame", err)
		}
	}
	return nil
}

// readFrame blocks until one complete frame is read from r, or returns the
// underlying read error (including io.EOF) unwrapped so callers can
// distinguish a clean close from a protocol violation.
func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	bodyLen := binary.BigEndian.Uint32(header[0:4])
	if bodyLen == 0 || bodyLen > maxFrameLen {
		return frame{}, ferrors.New(ferrors.StatusInternal, "readFrame", "invalid frame length")
	}
	ft := frameType(header[4])
	body := make([]byte, bodyLen-1)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return frame{}, err
		}
	}

	switch ft {
	case frameConnReq, frameConnAck:
		if len(body) != 8 {
			return frame{}, ferrors.New(ferrors.StatusInternal, "readFrame", "malformed identity frame")
		}
		return frame{Type: ft, Identity: binary.BigEndian.Uint64(body)}, nil
	case frameShutdown:
		return frame{Type: ft}, nil
	case frameWrite:
		if len(body) < 20 {
			return frame{}, ferrors.New(ferrors.StatusInternal, "readFrame", "malformed write frame")
		}
		return frame{
			Type:    ft,
			RKey:    binary.BigEndian.Uint64(body[0:8]),
			Offset:  binary.BigEndian.Uint64(body[8:16]),
			ImmData: binary.BigEndian.Uint32(body[16:20]),
			Payload: body[20:],
		}, nil
	case frameRecvReady:
		if len(body) != 8 {
			return frame{}, ferrors.New(ferrors.StatusInternal, "readFrame", "malformed recv-ready frame")
		}
		return frame{Type: ft, Token: binary.BigEndian.Uint64(body)}, nil
	default:
		return frame{}, ferrors.New(ferrors.StatusInternal, "readFrame", "unknown frame type on wire")
	}
}

// encodeDatagram serialises a single write frame (plus its addressing
// header) for the UDP/SHM backend, which has no persistent connection to
// frame against — every datagram carries the sender's Endpoint identity
// inline. The receiving read loop does not use it: it keys its
// AddressVector by the datagram's source address.
func encodeDatagram(senderIdentity uint64, f frame) []byte {
	buf := make([]byte, 8+20+len(f.Payload))
	binary.BigEndian.PutUint64(buf[0:8], senderIdentity)
	binary.BigEndian.PutUint64(buf[8:16], f.RKey)
	binary.BigEndian.PutUint64(buf[16:24], f.Offset)
	binary.BigEndian.PutUint32(buf[24:28], f.ImmData)
	copy(buf[28:], f.Payload)
	return buf
}

// decodeDatagram parses a UDP/SHM datagram produced by encodeDatagram.
func decodeDatagram(b []byte) (senderIdentity uint64, f frame, err error) {
	if len(b) < 28 {
		return 0, frame{}, ferrors.New(ferrors.StatusInvalidArg, "decodeDatagram", "datagram too short")
	}
	senderIdentity = binary.BigEndian.Uint64(b[0:8])
	f = frame{
		Type:    frameWrite,
		RKey:    binary.BigEndian.Uint64(b[8:16]),
		Offset:  binary.BigEndian.Uint64(b[16:24]),
		ImmData: binary.BigEndian.Uint32(b[24:28]),
		Payload: b[28:],
	}
	return senderIdentity, f, nil
}
