package wire

import "encoding/binary"

const maxFrameSize = 0x7fffffff

// makeHeader encodes a big-endian length prefix for data.
func makeHeader(data []byte) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	return header
}

func parseHeader(header []byte) uint32 {
	return binary.BigEndian.Uint32(header) & maxFrameSize
}
