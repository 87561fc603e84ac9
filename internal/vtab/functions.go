package vtab

import (
	"github.com/mattn/go-sqlite3"

	"vec0/internal/vecvalue"
)

// registerFunctions installs every vec_* scalar function on a single
// connection via go-sqlite3's RegisterFunc; Register calls it from the
// same ConnectHook that installs the vec0 module itself.
func registerFunctions(c *sqlite3.SQLiteConn) error {
	fns := map[string]interface{}{
		"vec_version":       vecVersion,
		"vec_debug":         vecDebug,
		"vec_f32":           vecF32,
		"vec_int8":          vecInt8,
		"vec_bit":           vecBit,
		"vec_length":        vecLength,
		"vec_type":          vecType,
		"vec_to_json":       vecToJSON,
		"vec_slice":         vecSlice,
		"vec_normalize":     vecNormalize,
		"vec_add":           vecAdd,
		"vec_sub":           vecSub,
		"vec_distance_l1":   vecDistanceL1,
		"vec_distance_l2":   vecDistanceL2,
		"vec_distance_cosine": vecDistanceCosine,
		"vec_distance_hamming": vecDistanceHamming,
		"vec_quantize_int8":   vecQuantizeInt8,
		"vec_quantize_binary": vecQuantizeBinary,
	}
	for name, fn := range fns {
		if err := c.RegisterFunc(name, fn, true); err != nil {
			return err
		}
	}
	return nil
}

const vecVersionString = "0.1.0"

func vecVersion() string { return vecVersionString }

func vecDebug() string {
	return "vec0 " + vecVersionString + " simd=" + vecvalue.Capability()
}

// anyToVector interprets an xFunc argument (text or blob) under kind.
func anyToVector(arg interface{}, kind vecvalue.Kind) (vecvalue.Vector, error) {
	switch v := arg.(type) {
	case []byte:
		return vecvalue.ParseBlob(v, kind)
	case string:
		return vecvalue.ParseText(v, kind)
	default:
		return vecvalue.Vector{}, &vecvalue.ParseError{Kind: kind, Message: "expected text or blob argument"}
	}
}

func vecF32(arg interface{}) ([]byte, error) {
	v, err := anyToVector(arg, vecvalue.Float32)
	if err != nil {
		return nil, err
	}
	return v.Raw, nil
}

func vecInt8(arg interface{}) ([]byte, error) {
	v, err := anyToVector(arg, vecvalue.Int8)
	if err != nil {
		return nil, err
	}
	return v.Raw, nil
}

func vecBit(arg interface{}) ([]byte, error) {
	v, err := anyToVector(arg, vecvalue.Bit)
	if err != nil {
		return nil, err
	}
	return v.Raw, nil
}

// guessKind picks the element kind a scalar function reads a vector
// argument as. It returns float32, vec_f32's own output format, for
// every argument, text or blob: the blob's length is not inspected and
// no subtype tag reaches the callback, so an int8 or bit blob is read
// as float32.
func guessKind(arg interface{}) vecvalue.Kind {
	if _, ok := arg.(string); ok {
		return vecvalue.Float32
	}
	return vecvalue.Float32
}

func vecLength(arg interface{}) (int, error) {
	v, err := anyToVector(arg, guessKind(arg))
	if err != nil {
		return 0, err
	}
	return v.Dim, nil
}

func vecType(arg interface{}) (string, error) {
	v, err := anyToVector(arg, guessKind(arg))
	if err != nil {
		return "", err
	}
	return v.Kind.String(), nil
}

func vecToJSON(arg interface{}) (string, error) {
	v, err := anyToVector(arg, guessKind(arg))
	if err != nil {
		return "", err
	}
	return v.ToJSON(), nil
}

func vecSlice(arg interface{}, start, end int) ([]byte, error) {
	v, err := anyToVector(arg, guessKind(arg))
	if err != nil {
		return nil, err
	}
	out, err := v.Slice(start, end)
	if err != nil {
		return nil, err
	}
	return out.Raw, nil
}

func vecNormalize(arg interface{}) ([]byte, error) {
	v, err := anyToVector(arg, vecvalue.Float32)
	if err != nil {
		return nil, err
	}
	out, err := vecvalue.Normalize(v)
	if err != nil {
		return nil, err
	}
	return out.Raw, nil
}

func vecAdd(a, b interface{}) ([]byte, error) {
	va, err := anyToVector(a, guessKind(a))
	if err != nil {
		return nil, err
	}
	vb, err := anyToVector(b, va.Kind)
	if err != nil {
		return nil, err
	}
	out, err := vecvalue.Add(va, vb)
	if err != nil {
		return nil, err
	}
	return out.Raw, nil
}

func vecSub(a, b interface{}) ([]byte, error) {
	va, err := anyToVector(a, guessKind(a))
	if err != nil {
		return nil, err
	}
	vb, err := anyToVector(b, va.Kind)
	if err != nil {
		return nil, err
	}
	out, err := vecvalue.Sub(va, vb)
	if err != nil {
		return nil, err
	}
	return out.Raw, nil
}

func vecDistanceL1(a, b interface{}) (float64, error) {
	return distanceBetween(a, b, vecvalue.L1)
}

func vecDistanceL2(a, b interface{}) (float64, error) {
	return distanceBetween(a, b, vecvalue.L2)
}

func vecDistanceCosine(a, b interface{}) (float64, error) {
	return distanceBetween(a, b, vecvalue.Cosine)
}

// vecDistanceHamming always parses its operands as Bit vectors: Hamming
// distance is only legal on bit vectors, and guessKind has no way to
// recover a subtype tag that didn't survive the round trip into a
// scalar function argument, so the default float32 guess distanceBetween
// relies on elsewhere would make this function reject every call.
func vecDistanceHamming(a, b interface{}) (float64, error) {
	va, err := anyToVector(a, vecvalue.Bit)
	if err != nil {
		return 0, err
	}
	vb, err := anyToVector(b, vecvalue.Bit)
	if err != nil {
		return 0, err
	}
	return vecvalue.Hamming(va, vb)
}

func distanceBetween(a, b interface{}, fn func(a, b vecvalue.Vector) (float64, error)) (float64, error) {
	va, err := anyToVector(a, guessKind(a))
	if err != nil {
		return 0, err
	}
	vb, err := anyToVector(b, va.Kind)
	if err != nil {
		return 0, err
	}
	return fn(va, vb)
}

func vecQuantizeInt8(arg interface{}, mode string) ([]byte, error) {
	v, err := anyToVector(arg, vecvalue.Float32)
	if err != nil {
		return nil, err
	}
	out, err := vecvalue.QuantizeToInt8(v, mode)
	if err != nil {
		return nil, err
	}
	return out.Raw, nil
}

func vecQuantizeBinary(arg interface{}) ([]byte, error) {
	v, err := anyToVector(arg, vecvalue.Float32)
	if err != nil {
		return nil, err
	}
	out, err := vecvalue.QuantizeToBinary(v)
	if err != nil {
		return nil, err
	}
	return out.Raw, nil
}
