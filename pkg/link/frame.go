package link

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderLen is the fixed size of a frame header: checksum, seq, ack, len.
const HeaderLen = 4 + 4 + 4 + 1

// MaxPayload is the largest payload a single frame can carry. The length
// field on the wire is one byte, so this is a hard wire-format limit.
const MaxPayload = 255

// Frame is the decoded form of one wire frame.
type Frame struct {
	Seq     uint32
	Ack     uint32
	Payload []byte
}

// IsAckOnly reports whether this frame carries no payload, i.e. it exists
// only to carry an ack number.
func (f Frame) IsAckOnly() bool {
	return len(f.Payload) == 0
}

// ChecksumError is returned by Decode when the recomputed checksum does not
// match the one on the wire. The caller has still consumed exactly
// HeaderLen+len(payload) bytes from the stream, since the channel is
// ordered and there is no resynchronization marker.
type ChecksumError struct {
	Want, Got uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("link: checksum mismatch: on wire %08x, computed %08x", e.Want, e.Got)
}

// Encode packs seq, ack and payload into a wire frame. It panics if payload
// exceeds MaxPayload: that can only happen if a caller bypasses Endpoint.Send,
// which already rejects oversized chunks, so this is an implementation bug,
// not a wire condition callers may hit in practice.
func Encode(seq, ack uint32, payload []byte) []byte {
	if len(payload) > MaxPayload {
		panic(fmt.Sprintf("link: payload of %d bytes exceeds MaxPayload", len(payload)))
	}
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[4:8], seq)
	binary.BigEndian.PutUint32(buf[8:12], ack)
	buf[12] = byte(len(payload))
	copy(buf[13:], payload)
	binary.BigEndian.PutUint32(buf[0:4], checksum(buf[4:]))
	return buf
}

// Decode reads exactly one frame from r: HeaderLen header bytes, followed by
// however many payload bytes the length byte names. A transport error from r
// is returned as-is and is terminal for the caller's endpoint. A checksum
// mismatch is returned as *ChecksumError; the bytes are still fully consumed.
func Decode(r io.Reader) (Frame, error) {
	hdr := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, err
	}
	wantSum := binary.BigEndian.Uint32(hdr[0:4])
	seq := binary.BigEndian.Uint32(hdr[4:8])
	ack := binary.BigEndian.Uint32(hdr[8:12])
	plen := int(hdr[12])

	// body mirrors exactly what Encode checksums: buf[4:], i.e. seq+ack+len
	// (9 bytes) followed by the payload, no padding.
	body := make([]byte, 9+plen)
	copy(body, hdr[4:])
	if plen > 0 {
		if _, err := io.ReadFull(r, body[9:]); err != nil {
			return Frame{}, err
		}
	}

	gotSum := checksum(body)
	if gotSum != wantSum {
		return Frame{}, &ChecksumError{Want: wantSum, Got: gotSum}
	}
	return Frame{Seq: seq, Ack: ack, Payload: body[9:]}, nil
}

// checksum is the weak additive checksum from spec.md: the sum of every
// byte, every even-indexed byte, every odd-indexed byte, and every third
// byte starting at index 1, reduced modulo 2^32. It detects any single-byte
// flip but is not cryptographically meaningful.
func checksum(data []byte) uint32 {
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	for i := 0; i < len(data); i += 2 {
		sum += uint64(data[i])
	}
	for i := 1; i < len(data); i += 2 {
		sum += uint64(data[i])
	}
	for i := 1; i < len(data); i += 3 {
		sum += uint64(data[i])
	}
	return uint32(sum % (1 << 32))
}
