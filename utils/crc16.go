package utils

import (
	"encoding/binary"
	"errors"

	"github.com/howeyc/crc16"
)

var ErrChecksumMismatch = errors.New("crc16 checksum mismatch")

func CalculateCRC16(data []byte) uint16 {
	return crc16.Checksum(data, crc16.IBMTable)
}

// AppendChecksum returns data with its crc16 appended as a little-endian
// trailer. Records written to the engine carry this trailer.
func AppendChecksum(data []byte) []byte {
	out := make([]byte, len(data)+2)
	copy(out, data)
	binary.LittleEndian.PutUint16(out[len(data):], CalculateCRC16(data))
	return out
}

// VerifyChecksum strips and verifies the trailer added by AppendChecksum.
func VerifyChecksum(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, ErrChecksumMismatch
	}
	body := data[:len(data)-2]
	want := binary.LittleEndian.Uint16(data[len(data)-2:])
	if CalculateCRC16(body) != want {
		return nil, ErrChecksumMismatch
	}
	return body, nil
}
