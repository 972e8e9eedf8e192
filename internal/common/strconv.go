package common

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// DigitsOnly drops every rune that is not an ASCII digit, so "12a3b" becomes "123".
func DigitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if c := value[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ParseDigits extracts the digits of free-text input and parses them as a
// non-negative integer. Empty input yields 0; values too large for int64
// saturate at math.MaxInt64. It never fails.
func ParseDigits(value string) int64 {
	digits := DigitsOnly(value)
	var n int64
	for i := 0; i < len(digits); i++ {
		d := int64(digits[i] - '0')
		if n > (math.MaxInt64-d)/10 {
			return math.MaxInt64
		}
		n = n*10 + d
	}
	return n
}

// RawText returns the text of a loosely typed JSON field. Strings are
// decoded, so escapes resolve before digits are read; numbers and other
// literals are returned as written. An undecodable string yields "".
func RawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] != '"' {
		return string(raw)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
