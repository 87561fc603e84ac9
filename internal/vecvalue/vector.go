// Package vecvalue implements the vec0 vector value type: parsing,
// emitting, slicing, quantizing, and the distance kernels that operate
// on it. A Vector is a tagged variant over three element kinds —
// Float32, Int8, Bit — carrying its raw wire-format bytes directly, so
// that parsing a column value and serializing a chunk slot use the
// same representation. See distance.go for the kernels and simd.go
// for their inner loops, which are the same portable Go on every
// platform.
package vecvalue

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags which element type a Vector holds.
type Kind int

const (
	Float32 Kind = iota
	Int8
	Bit
)

func (k Kind) String() string {
	switch k {
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	case Bit:
		return "bit"
	default:
		return "unknown"
	}
}

// ElementWidth returns the number of bits each dimension occupies:
// 32 for float32, 8 for int8, 1 for bit.
func (k Kind) ElementWidth() int {
	switch k {
	case Float32:
		return 32
	case Int8:
		return 8
	case Bit:
		return 1
	default:
		return 0
	}
}

// ByteLen returns the number of bytes dim elements of this kind occupy.
// For Bit, dim must be a multiple of 8.
func (k Kind) ByteLen(dim int) int {
	switch k {
	case Float32:
		return dim * 4
	case Int8:
		return dim
	case Bit:
		return dim / 8
	default:
		return 0
	}
}

// Subtype tags are the single-byte format markers the host's
// value-passing protocol can attach to a blob result so that a
// downstream function can tell what kind a raw byte buffer holds
// without re-parsing it (SQLite's "subtype" mechanism).
const (
	SubtypeFloat32 byte = 223
	SubtypeBit     byte = 224
	SubtypeInt8    byte = 225
)

// Subtype returns the subtype tag for k.
func (k Kind) Subtype() byte {
	switch k {
	case Float32:
		return SubtypeFloat32
	case Bit:
		return SubtypeBit
	case Int8:
		return SubtypeInt8
	default:
		return 0
	}
}

// KindFromSubtype reverses Subtype.
func KindFromSubtype(tag byte) (Kind, bool) {
	switch tag {
	case SubtypeFloat32:
		return Float32, true
	case SubtypeBit:
		return Bit, true
	case SubtypeInt8:
		return Int8, true
	default:
		return 0, false
	}
}

// Vector is a parsed vec0 vector value: its element kind, its
// dimension, and its raw wire-format bytes (little-endian, row-major).
type Vector struct {
	Kind Kind
	Dim  int
	Raw  []byte
}

// ParseError reports that a vector value could not be parsed into a
// Vector of the requested kind.
type ParseError struct {
	Kind    Kind
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vec0 parse error (%s): %s", e.Kind, e.Message)
}

// ParseText parses the bracketed text form "[x0, x1, ...]" into a
// Vector of the given kind. Whitespace around elements and the
// brackets is tolerated. Fails if the string doesn't begin with '[' or
// any element fails numeric conversion.
func ParseText(s string, kind Kind) (Vector, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") {
		return Vector{}, &ParseError{Kind: kind, Message: "text vector must start with '['"}
	}
	end := strings.LastIndex(trimmed, "]")
	if end < 0 {
		return Vector{}, &ParseError{Kind: kind, Message: "text vector must end with ']'"}
	}
	inner := strings.TrimSpace(trimmed[1:end])

	var fields []string
	if inner != "" {
		fields = strings.Split(inner, ",")
	}

	switch kind {
	case Float32:
		raw := make([]byte, len(fields)*4)
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return Vector{}, &ParseError{Kind: kind, Message: fmt.Sprintf("element %d: %v", i, err)}
			}
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
		}
		if len(raw) == 0 {
			return Vector{}, &ParseError{Kind: kind, Message: "zero-length vector"}
		}
		return Vector{Kind: Float32, Dim: len(fields), Raw: raw}, nil
	case Int8:
		raw := make([]byte, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 16)
			if err != nil || v < -128 || v > 127 {
				return Vector{}, &ParseError{Kind: kind, Message: fmt.Sprintf("element %d out of int8 range", i)}
			}
			raw[i] = byte(int8(v))
		}
		if len(raw) == 0 {
			return Vector{}, &ParseError{Kind: kind, Message: "zero-length vector"}
		}
		return Vector{Kind: Int8, Dim: len(fields), Raw: raw}, nil
	case Bit:
		if len(fields)%8 != 0 {
			return Vector{}, &ParseError{Kind: kind, Message: "bit vector dimension must be a multiple of 8"}
		}
		raw := make([]byte, len(fields)/8)
		for i, f := range fields {
			v := strings.TrimSpace(f)
			switch v {
			case "0":
			case "1":
				raw[i/8] |= 1 << uint(i%8)
			default:
				return Vector{}, &ParseError{Kind: kind, Message: fmt.Sprintf("element %d: bit vectors accept only 0 or 1", i)}
			}
		}
		if len(raw) == 0 {
			return Vector{}, &ParseError{Kind: kind, Message: "zero-length vector"}
		}
		return Vector{Kind: Bit, Dim: len(fields), Raw: raw}, nil
	default:
		return Vector{}, &ParseError{Kind: kind, Message: "unknown kind"}
	}
}

// ParseBlob interprets a raw byte buffer under the given kind's wire
// format. For Float32 the length must be divisible by 4; for Bit the
// length must be a whole number of bytes (every byte holds 8
// dimensions). Zero-length vectors are rejected.
func ParseBlob(b []byte, kind Kind) (Vector, error) {
	if len(b) == 0 {
		return Vector{}, &ParseError{Kind: kind, Message: "zero-length vector"}
	}
	switch kind {
	case Float32:
		if len(b)%4 != 0 {
			return Vector{}, &ParseError{Kind: kind, Message: "byte length not divisible by 4"}
		}
		return Vector{Kind: Float32, Dim: len(b) / 4, Raw: append([]byte(nil), b...)}, nil
	case Int8:
		return Vector{Kind: Int8, Dim: len(b), Raw: append([]byte(nil), b...)}, nil
	case Bit:
		return Vector{Kind: Bit, Dim: len(b) * 8, Raw: append([]byte(nil), b...)}, nil
	default:
		return Vector{}, &ParseError{Kind: kind, Message: "unknown kind"}
	}
}

// Float32Elements returns the vector's elements as a []float32. Panics
// if Kind != Float32 — callers are expected to check Kind first.
func (v Vector) Float32Elements() []float32 {
	out := make([]float32, v.Dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(v.Raw[i*4:]))
	}
	return out
}

// Int8Elements returns the vector's elements as a []int8.
func (v Vector) Int8Elements() []int8 {
	out := make([]int8, v.Dim)
	for i := range out {
		out[i] = int8(v.Raw[i])
	}
	return out
}

// BitTest reports whether dimension i is set (LSB-first within each byte).
func (v Vector) BitTest(i int) bool {
	return v.Raw[i/8]&(1<<uint(i%8)) != 0
}

// ToJSON renders the vector in the textual form vec_to_json produces:
// "[%f,...]" (6 decimals) for float32, "[%d,...]" for int8, "[0,1,...]"
// for bit.
func (v Vector) ToJSON() string {
	var b strings.Builder
	b.WriteByte('[')
	switch v.Kind {
	case Float32:
		els := v.Float32Elements()
		for i, e := range els {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%.6f", e)
		}
	case Int8:
		els := v.Int8Elements()
		for i, e := range els {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", e)
		}
	case Bit:
		for i := 0; i < v.Dim; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			if v.BitTest(i) {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	b.WriteByte(']')
	return b.String()
}

// Slice extracts the half-open range [start, end) of dimensions. For
// Bit vectors both indices must be multiples of 8. Both indices must
// be non-negative, start < end, end <= Dim.
func (v Vector) Slice(start, end int) (Vector, error) {
	if start < 0 || end <= start || end > v.Dim {
		return Vector{}, &ParseError{Kind: v.Kind, Message: "slice bounds out of range"}
	}
	switch v.Kind {
	case Float32:
		raw := append([]byte(nil), v.Raw[start*4:end*4]...)
		return Vector{Kind: Float32, Dim: end - start, Raw: raw}, nil
	case Int8:
		raw := append([]byte(nil), v.Raw[start:end]...)
		return Vector{Kind: Int8, Dim: end - start, Raw: raw}, nil
	case Bit:
		if start%8 != 0 || end%8 != 0 {
			return Vector{}, &ParseError{Kind: v.Kind, Message: "bit vector slice bounds must be multiples of 8"}
		}
		raw := append([]byte(nil), v.Raw[start/8:end/8]...)
		return Vector{Kind: Bit, Dim: end - start, Raw: raw}, nil
	default:
		return Vector{}, &ParseError{Kind: v.Kind, Message: "unknown kind"}
	}
}
