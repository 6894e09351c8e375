package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	errShortRecord = errors.New("record too short")
	errBadHeader   = errors.New("bad record header")
	errChecksum    = errors.New("checksum mismatch")
)

// EncodeRecord frames header and payload: varint headerLen | header | payload | crc32c.
func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// Decoded is a verified record frame.
type Decoded struct {
	Header  []byte
	Payload []byte
}

// DecodeRecord verifies and splits a frame.
func DecodeRecord(b []byte) (Decoded, error) {
	if len(b) < 1+4 {
		return Decoded{}, errShortRecord
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen > uint64(len(b)) {
		return Decoded{}, errBadHeader
	}
	if n+int(hlen)+4 > len(b) {
		return Decoded{}, errShortRecord
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Decoded{}, errChecksum
	}
	return Decoded{Header: header, Payload: payload}, nil
}

// recordHeader is id_be8 | codec name.
func recordHeader(id uint64, codecName string) []byte {
	h := make([]byte, 0, 8+len(codecName))
	h = binary.BigEndian.AppendUint64(h, id)
	return append(h, codecName...)
}

func parseHeader(h []byte) (id uint64, codecName string, err error) {
	if len(h) < 8 {
		return 0, "", errBadHeader
	}
	return binary.BigEndian.Uint64(h[:8]), string(h[8:]), nil
}
