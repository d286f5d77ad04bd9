package utils

import (
	"fmt"
	"strings"
)

// Formats a byte sequence as space separated hex pairs, e.g. "FF FF 01 02 01 FB"
func FormatHexBytes(data []byte) string {
	var builder strings.Builder

	for i, b := range data {
		if i > 0 {
			builder.WriteByte(' ')
		}
		fmt.Fprintf(&builder, "%02X", b)
	}

	return builder.String()
}

// Returns an string containing all formatted sequence items separated by a given separator
func FormatSlice[T any](input []T, separator string) string {
	var builder strings.Builder

	for i, value := range input {
		builder.WriteString(fmt.Sprint(value))

		if i < len(input)-1 {
			builder.WriteString(separator)
		}
	}

	return builder.String()
}
