package pager

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value type tags. The tag is the first byte of every encoded value, so
// values of different types never compare equal.
const (
	tagNil    byte = 0x00
	tagFalse  byte = 0x01
	tagTrue   byte = 0x02
	tagInt    byte = 0x03 // zigzag varint
	tagUint   byte = 0x04 // uvarint
	tagFloat  byte = 0x05 // IEEE 754 bits, big endian
	tagString byte = 0x06 // raw bytes
	tagBytes  byte = 0x07 // raw bytes
)

// EncodeValue encodes v into the byte form stored in document content and
// matched by queries.
//
// The encoding is deterministic: equal inputs always produce identical
// bytes. Signed integers of every width share one encoding, as do unsigned
// integers and floats, so Eq(int32(7)) matches a field set with int64(7).
// Signed and unsigned integers are distinct types.
//
// Supported: nil, bool, int*, uint*, float32, float64, string, []byte.
// Anything else returns [ErrInvalidInput].
func EncodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{tagNil}, nil
	case bool:
		if x {
			return []byte{tagTrue}, nil
		}

		return []byte{tagFalse}, nil
	case int:
		return encodeInt(int64(x)), nil
	case int8:
		return encodeInt(int64(x)), nil
	case int16:
		return encodeInt(int64(x)), nil
	case int32:
		return encodeInt(int64(x)), nil
	case int64:
		return encodeInt(x), nil
	case uint:
		return encodeUint(uint64(x)), nil
	case uint8:
		return encodeUint(uint64(x)), nil
	case uint16:
		return encodeUint(uint64(x)), nil
	case uint32:
		return encodeUint(uint64(x)), nil
	case uint64:
		return encodeUint(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	case float64:
		return encodeFloat(x), nil
	case string:
		return append([]byte{tagString}, x...), nil
	case []byte:
		return append([]byte{tagBytes}, x...), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T: %w", v, ErrInvalidInput)
	}
}

// DecodeValue reverses [EncodeValue]. Integers decode as int64 or uint64,
// floats as float64.
func DecodeValue(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty value: %w", ErrDecode)
	}

	payload := b[1:]

	switch b[0] {
	case tagNil, tagFalse, tagTrue:
		if len(payload) != 0 {
			return nil, fmt.Errorf("tag %#x with %d payload bytes: %w", b[0], len(payload), ErrDecode)
		}

		switch b[0] {
		case tagFalse:
			return false, nil
		case tagTrue:
			return true, nil
		default:
			return nil, nil
		}
	case tagInt:
		v, n := binary.Varint(payload)
		if n <= 0 || n != len(payload) {
			return nil, fmt.Errorf("bad int payload: %w", ErrDecode)
		}

		return v, nil
	case tagUint:
		v, n := binary.Uvarint(payload)
		if n <= 0 || n != len(payload) {
			return nil, fmt.Errorf("bad uint payload: %w", ErrDecode)
		}

		return v, nil
	case tagFloat:
		if len(payload) != 8 {
			return nil, fmt.Errorf("float payload is %d bytes: %w", len(payload), ErrDecode)
		}

		return math.Float64frombits(binary.BigEndian.Uint64(payload)), nil
	case tagString:
		return string(payload), nil
	case tagBytes:
		return append([]byte(nil), payload...), nil
	default:
		return nil, fmt.Errorf("unknown value tag %#x: %w", b[0], ErrDecode)
	}
}

func encodeInt(v int64) []byte {
	buf := make([]byte, 1+binary.MaxVarintLen64)
	buf[0] = tagInt
	n := binary.PutVarint(buf[1:], v)

	return buf[:1+n]
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 1+binary.MaxVarintLen64)
	buf[0] = tagUint
	n := binary.PutUvarint(buf[1:], v)

	return buf[:1+n]
}

func encodeFloat(v float64) []byte {
	// Normalize -0 and NaN payloads so equal-looking floats share bytes.
	if v == 0 {
		v = 0
	}

	if math.IsNaN(v) {
		v = math.NaN()
	}

	buf := make([]byte, 9)
	buf[0] = tagFloat
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v))

	return buf
}
