// Package ipnorm converts the IP address representations found in transaction
// datasets into a canonical unsigned integer key.
package ipnorm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"strconv"
	"strings"

	"lukechampine.com/uint128"
)

var ErrInvalidIP = errors.New("invalid ip address")

// 2^64 and 2^128 as float64, both exactly representable.
const (
	twoPow64  = 18446744073709551616.0
	twoPow128 = 340282366920938463463374607431768211456.0
)

type InvalidIPError struct {
	Value any
	Err   error
}

func (e *InvalidIPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid ip address %v (%T): %v", e.Value, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid ip address %v (%T)", e.Value, e.Value)
}

func (e *InvalidIPError) Unwrap() error {
	return e.Err
}

func (e *InvalidIPError) Is(target error) bool {
	return target == ErrInvalidIP
}

// Normalize returns the canonical integer form of an IP address given as an
// integer, a float, a numeric string, or an IPv4/IPv6 literal.
//
// Strings are always tried as numbers before they are tried as address
// literals, so "16909060" and "1.2.3.4" normalize to the same key.
func Normalize(v any) (uint128.Uint128, error) {
	switch x := v.(type) {
	case uint128.Uint128:
		return x, nil
	case netip.Addr:
		return fromAddr(v, x)
	case int:
		return fromInt(v, int64(x))
	case int8:
		return fromInt(v, int64(x))
	case int16:
		return fromInt(v, int64(x))
	case int32:
		return fromInt(v, int64(x))
	case int64:
		return fromInt(v, x)
	case uint:
		return uint128.From64(uint64(x)), nil
	case uint8:
		return uint128.From64(uint64(x)), nil
	case uint16:
		return uint128.From64(uint64(x)), nil
	case uint32:
		return uint128.From64(uint64(x)), nil
	case uint64:
		return uint128.From64(x), nil
	case float32:
		return fromFloat(v, float64(x))
	case float64:
		return fromFloat(v, x)
	case string:
		return fromString(v, x)
	}
	return uint128.Zero, &InvalidIPError{Value: v, Err: errors.New("unsupported type")}
}

// Addr maps a key back to an address. Keys below 2^32 are IPv4.
func Addr(k uint128.Uint128) netip.Addr {
	if k.Hi == 0 && k.Lo <= math.MaxUint32 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(k.Lo))
		return netip.AddrFrom4(b)
	}
	var b [16]byte
	k.PutBytesBE(b[:])
	return netip.AddrFrom16(b)
}

// FromAddr returns the key for an address. IPv4-mapped IPv6 addresses keep
// their 128-bit value.
func FromAddr(a netip.Addr) uint128.Uint128 {
	if a.Is4() {
		b := a.As4()
		return uint128.From64(uint64(binary.BigEndian.Uint32(b[:])))
	}
	b := a.As16()
	return uint128.FromBytesBE(b[:])
}

func fromAddr(orig any, a netip.Addr) (uint128.Uint128, error) {
	if !a.IsValid() {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("zero address")}
	}
	if a.Zone() != "" {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("zoned address")}
	}
	return FromAddr(a), nil
}

func fromInt(orig any, n int64) (uint128.Uint128, error) {
	if n < 0 {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("negative value")}
	}
	return uint128.From64(uint64(n)), nil
}

func fromFloat(orig any, f float64) (uint128.Uint128, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("not a finite number")}
	}
	r := math.RoundToEven(f)
	if r < 0 {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("negative value")}
	}
	if r < twoPow64 {
		return uint128.From64(uint64(r)), nil
	}
	if r >= twoPow128 {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("value exceeds 128 bits")}
	}
	bi, _ := new(big.Float).SetFloat64(r).Int(nil)
	return uint128.FromBig(bi), nil
}

func fromString(orig any, s string) (uint128.Uint128, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("empty string")}
	}

	// Exact path for integer strings so large pre-encoded IPv6 keys keep
	// every bit; float parsing would round them to 53 bits of mantissa.
	if isDigits(s) {
		bi, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("malformed integer")}
		}
		if bi.BitLen() > 128 {
			return uint128.Zero, &InvalidIPError{Value: orig, Err: errors.New("value exceeds 128 bits")}
		}
		return uint128.FromBig(bi), nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromFloat(orig, f)
	}

	a, err := netip.ParseAddr(s)
	if err != nil {
		return uint128.Zero, &InvalidIPError{Value: orig, Err: err}
	}
	return fromAddr(orig, a)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
