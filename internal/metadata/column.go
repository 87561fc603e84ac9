// Package metadata implements the bit-packed, fixed-width per-chunk
// column buffers that back a vec0 table's filterable metadata
// columns, and the predicate evaluator that turns a WHERE clause
// constraint into a match bitmap the KNN executor ANDs into its
// candidate set.
package metadata

import (
	"encoding/binary"
	"math"

	"vec0/internal/bitset"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
)

// textRecordLen is the per-slot stride of a text column's fixed
// buffer: a 12-byte inline prefix cache plus a 4-byte length field
// whose high bit flags overflow-table storage.
const textRecordLen = 16

const overflowFlag = uint32(1) << 31

// BufferLen returns the byte length of one chunk's buffer for a
// column of the given type and slot count.
func BufferLen(t tableopts.MetaType, size int) int {
	switch t {
	case tableopts.MetaBoolean:
		return bitset.ByteLen(size)
	case tableopts.MetaInteger, tableopts.MetaFloat:
		return size * 8
	case tableopts.MetaText:
		return size * textRecordLen
	default:
		return 0
	}
}

// GetBool reads slot i of a boolean column buffer.
func GetBool(buf []byte, i int) bool {
	return bitset.Bitmap(buf).Test(i)
}

// SetBool writes slot i of a boolean column buffer.
func SetBool(buf []byte, i int, v bool) {
	bitset.Bitmap(buf).PutBool(i, v)
}

// GetInt64 reads slot i of an integer column buffer.
func GetInt64(buf []byte, i int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[i*8:]))
}

// SetInt64 writes slot i of an integer column buffer.
func SetInt64(buf []byte, i int, v int64) {
	binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
}

// GetFloat64 reads slot i of a float column buffer.
func GetFloat64(buf []byte, i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
}

// SetFloat64 writes slot i of a float column buffer.
func SetFloat64(buf []byte, i int, v float64) {
	binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
}

// ClearSlot zeroes slot i of any column buffer, given its type.
func ClearSlot(t tableopts.MetaType, buf []byte, i int) {
	switch t {
	case tableopts.MetaBoolean:
		bitset.Bitmap(buf).Clear(i)
	case tableopts.MetaInteger, tableopts.MetaFloat:
		clear8(buf[i*8:])
	case tableopts.MetaText:
		rec := buf[i*textRecordLen : (i+1)*textRecordLen]
		for j := range rec {
			rec[j] = 0
		}
	}
}

func clear8(b []byte) {
	for i := 0; i < 8; i++ {
		b[i] = 0
	}
}

// TextOverflow is implemented by the chunk store to back the side
// table that holds strings too long for the 12-byte inline cache.
type TextOverflow interface {
	Get(chunkID int64, slot int) (string, error)
	Set(chunkID int64, slot int, value string) error
	Delete(chunkID int64, slot int) error
}

// textRecord is the decoded form of one slot's 16-byte text record.
type textRecord struct {
	prefix   [12]byte
	length   uint32
	overflow bool
}

func readTextRecord(buf []byte, i int) textRecord {
	rec := buf[i*textRecordLen : (i+1)*textRecordLen]
	var r textRecord
	copy(r.prefix[:], rec[:12])
	raw := binary.LittleEndian.Uint32(rec[12:16])
	r.overflow = raw&overflowFlag != 0
	r.length = raw &^ overflowFlag
	return r
}

func writeTextRecord(buf []byte, i int, r textRecord) {
	rec := buf[i*textRecordLen : (i+1)*textRecordLen]
	copy(rec[:12], r.prefix[:])
	raw := r.length
	if r.overflow {
		raw |= overflowFlag
	}
	binary.LittleEndian.PutUint32(rec[12:16], raw)
}

// SetText writes value into slot i. Values of 12 bytes or fewer store
// entirely inline; longer values cache a 12-byte prefix and spill the
// full string to overflow. Short-to-long and long-to-short updates
// correctly allocate/free the overflow row; short-to-short and
// long-to-long updates mutate in place.
func SetText(buf []byte, i int, value string, overflow TextOverflow, chunkID int64) error {
	prev := readTextRecord(buf, i)

	var r textRecord
	r.length = uint32(len(value))
	if len(value) <= 12 {
		copy(r.prefix[:], value)
		r.overflow = false
		if prev.overflow {
			if err := overflow.Delete(chunkID, i); err != nil {
				return vecerr.Resourcef("metadata", err)
			}
		}
	} else {
		copy(r.prefix[:], value[:12])
		r.overflow = true
		if err := overflow.Set(chunkID, i, value); err != nil {
			return vecerr.Resourcef("metadata", err)
		}
	}
	writeTextRecord(buf, i, r)
	return nil
}

// GetText reads the full value of slot i, consulting overflow when needed.
func GetText(buf []byte, i int, overflow TextOverflow, chunkID int64) (string, error) {
	r := readTextRecord(buf, i)
	if !r.overflow {
		return string(r.prefix[:r.length]), nil
	}
	s, err := overflow.Get(chunkID, i)
	if err != nil {
		return "", vecerr.Resourcef("metadata", err)
	}
	return s, nil
}

// TextPrefix returns the inline 12-byte prefix cache for slot i
// without touching overflow — used by the LIKE/GLOB prefix fast path.
func TextPrefix(buf []byte, i int) ([]byte, bool) {
	r := readTextRecord(buf, i)
	if int(r.length) <= 12 {
		return r.prefix[:r.length], false
	}
	return r.prefix[:12], true
}

// ClearText deletes slot i's overflow row (if any) and zeroes its
// inline record.
func ClearText(buf []byte, i int, overflow TextOverflow, chunkID int64) error {
	r := readTextRecord(buf, i)
	if r.overflow {
		if err := overflow.Delete(chunkID, i); err != nil {
			return vecerr.Resourcef("metadata", err)
		}
	}
	ClearSlot(tableopts.MetaText, buf, i)
	return nil
}
