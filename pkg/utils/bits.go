package utils

import (
	"golang.org/x/exp/constraints"
)

const BitsPerByte = 8

// Returns the size in bits of n bytes
func Bits(bytes int) int {
	return bytes * BitsPerByte
}

// Returns an all ones bitmask of n bits of the given unsigned integer type
func AllOnes[T constraints.Unsigned](bits int) T {
	return (T(1) << bits) - T(1)
}

// Splits a value into width bytes, least significant byte first.
// Bits that do not fit into width bytes are ignored.
func SplitLE[T constraints.Unsigned](value T, width int) []byte {
	out := make([]byte, width)

	for i := range out {
		out[i] = byte(value >> Bits(i))
	}

	return out
}

// Joins a little endian byte sequence into a value. Bytes past the size of T are ignored.
func JoinLE[T constraints.Unsigned](data []byte) T {
	var value T

	for i, b := range data {
		value |= T(b) << Bits(i)
	}

	return value
}

// Replaces the byte at the given little endian position of a value
func SetByteLE[T constraints.Unsigned](value T, position int, b byte) T {
	mask := T(0xFF) << Bits(position)
	return (value &^ mask) | (T(b) << Bits(position))
}

// Limits value to the closed range [low, high]
func Clamp[T constraints.Ordered](value, low, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
