package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// packUint8 copies unsigned 8-bit samples into dst.
func packUint8(dst []byte, src []uint8) error {
	if len(dst) != len(src) {
		return fmt.Errorf("chunk size mismatch: want %d bytes, got %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

// packInt16 writes src into dst as signed 16-bit little-endian samples.
func packInt16(dst []byte, src []int16) error {
	if len(dst) != 2*len(src) {
		return fmt.Errorf("chunk size mismatch: want %d bytes, got %d", 2*len(src), len(dst))
	}
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
	return nil
}

// packFloat32 writes src into dst as IEEE-754 little-endian samples.
func packFloat32(dst []byte, src []float32) error {
	if len(dst) != 4*len(src) {
		return fmt.Errorf("chunk size mismatch: want %d bytes, got %d", 4*len(src), len(dst))
	}
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(s))
	}
	return nil
}
