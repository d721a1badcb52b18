// Package timestamp converts the integer encodings returned by contract
// reads into plain unix-second values.
package timestamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// ErrMalformedTimestamp is returned when a value has no usable integer form.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Int64er is implemented by arbitrary-precision integer types that can
// report a plain int64 (for example *big.Int).
type Int64er interface {
	Int64() int64
}

// Uint64er is implemented by unsigned fixed-width integer types (for example
// *uint256.Int).
type Uint64er interface {
	Uint64() uint64
}

// Normalize returns v as a non-negative unix timestamp in seconds.
func Normalize(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: nil", ErrMalformedTimestamp)
	case int:
		return fromInt64(int64(t))
	case int8:
		return fromInt64(int64(t))
	case int16:
		return fromInt64(int64(t))
	case int32:
		return fromInt64(int64(t))
	case int64:
		return fromInt64(t)
	case uint:
		return fromUint64(uint64(t))
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return fromUint64(t)
	case float64:
		return fromFloat(t)
	case float32:
		return fromFloat(float64(t))
	case string:
		return fromString(t)
	case json.Number:
		return fromString(t.String())
	case *big.Int:
		return fromBig(t)
	case big.Int:
		return fromBig(&t)
	case *uint256.Int:
		if t == nil {
			return 0, fmt.Errorf("%w: nil uint256", ErrMalformedTimestamp)
		}
		if !t.IsUint64() {
			return 0, fmt.Errorf("%w: %s overflows int64", ErrMalformedTimestamp, t.Dec())
		}
		return fromUint64(t.Uint64())
	case Int64er:
		return fromInt64(t.Int64())
	case Uint64er:
		return fromUint64(t.Uint64())
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrMalformedTimestamp, v)
}

// MustNormalize is Normalize for values already known to be well formed.
// Malformed input yields 0, which every caller treats as "absent".
func MustNormalize(v any) int64 {
	n, err := Normalize(v)
	if err != nil {
		return 0
	}
	return n
}

func fromInt64(n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value %d", ErrMalformedTimestamp, n)
	}
	return n, nil
}

func fromUint64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d overflows int64", ErrMalformedTimestamp, n)
	}
	return int64(n), nil
}

func fromFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: non-integral value %v", ErrMalformedTimestamp, f)
	}
	if f < 0 || f > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v out of range", ErrMalformedTimestamp, f)
	}
	return int64(f), nil
}

func fromString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrMalformedTimestamp)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		return fromUint64(n)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	return fromInt64(n)
}

func fromBig(b *big.Int) (int64, error) {
	if b == nil {
		return 0, fmt.Errorf("%w: nil big.Int", ErrMalformedTimestamp)
	}
	if !b.IsInt64() {
		return 0, fmt.Errorf("%w: %s overflows int64", ErrMalformedTimestamp, b.String())
	}
	return fromInt64(b.Int64())
}
