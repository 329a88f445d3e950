package wasm

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	wbin "github.com/wippyai/wasm-instrument/wasm/internal/binary"
)

// ErrOverflow is returned when a LEB128 value exceeds its bit width.
var ErrOverflow = wbin.ErrOverflow

type unsigned interface{ ~uint32 | ~uint64 }

type signed interface{ ~int32 | ~int64 }

// maxLEBBytes is ceil(bits/7).
func maxLEBBytes(bits uint) uint { return (bits + 6) / 7 }

func readUnsigned[T unsigned](r io.ByteReader, bits uint) (T, error) {
	var v T
	for i, shift := uint(0), uint(0); i < maxLEBBytes(bits); i, shift = i+1, shift+7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= T(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrOverflow
}

func readSigned[T signed](r io.ByteReader, bits uint) (T, error) {
	var v T
	var shift uint
	for i := uint(0); i < maxLEBBytes(bits); i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= T(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < bits && b&0x40 != 0 {
				v |= ^T(0) << shift
			}
			return v, nil
		}
	}
	return 0, ErrOverflow
}

func writeUnsigned[T unsigned](w *bytes.Buffer, v T) {
	for v >= 0x80 {
		w.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	w.WriteByte(byte(v))
}

func writeSigned[T signed](w *bytes.Buffer, v T) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.WriteByte(b)
			return
		}
		w.WriteByte(b | 0x80)
	}
}

// ReadLEB128u reads an unsigned 32-bit LEB128 value.
func ReadLEB128u(r io.ByteReader) (uint32, error) { return readUnsigned[uint32](r, 32) }

// ReadLEB128u64 reads an unsigned 64-bit LEB128 value.
func ReadLEB128u64(r io.ByteReader) (uint64, error) { return readUnsigned[uint64](r, 64) }

// ReadLEB128s reads a signed 32-bit LEB128 value.
func ReadLEB128s(r io.ByteReader) (int32, error) { return readSigned[int32](r, 32) }

// ReadLEB128s64 reads a signed 64-bit LEB128 value.
func ReadLEB128s64(r io.ByteReader) (int64, error) { return readSigned[int64](r, 64) }

func WriteLEB128u(w *bytes.Buffer, v uint32)   { writeUnsigned(w, v) }
func WriteLEB128u64(w *bytes.Buffer, v uint64) { writeUnsigned(w, v) }
func WriteLEB128s(w *bytes.Buffer, v int32)    { writeSigned(w, v) }
func WriteLEB128s64(w *bytes.Buffer, v int64)  { writeSigned(w, v) }

// EncodeLEB128u returns the unsigned LEB128 encoding of v.
func EncodeLEB128u(v uint32) []byte {
	var buf bytes.Buffer
	writeUnsigned(&buf, v)
	return buf.Bytes()
}

// EncodeLEB128s64 returns the signed LEB128 encoding of v.
func EncodeLEB128s64(v int64) []byte {
	var buf bytes.Buffer
	writeSigned(&buf, v)
	return buf.Bytes()
}

// ReadFloat32 reads a little-endian f32 immediate.
func ReadFloat32(r io.Reader) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}

// ReadFloat64 reads a little-endian f64 immediate.
func ReadFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

func WriteFloat32(w *bytes.Buffer, v float32) {
	w.Write(binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)))
}

func WriteFloat64(w *bytes.Buffer, v float64) {
	w.Write(binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
}
