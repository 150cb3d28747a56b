package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON for hashing.
// CRITICAL: This is the ONLY serialization that should be used for
// batch tokens and payload hashes.
//
// It accepts the values produced by encoding/json decoding into any
// (preferably with UseNumber) plus Go integers.
//
// Key differences from standard json.Marshal:
// 1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
// 2. No HTML escaping (< > & are NOT escaped)
// 3. Strings are NFC normalized
// 4. json.Number is written as its literal text
// 5. No Go floats (returns error)
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeCanonicalString(buf, val)
	case json.Number:
		if !json.Valid([]byte(val)) {
			return fmt.Errorf("invalid number literal %q", string(val))
		}
		buf.WriteString(string(val))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float64, float32:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString writes an NFC-normalized JSON string.
// Only quote, backslash and control characters (U+0000-U+001F) are escaped;
// U+2028 and U+2029 are written literally per RFC 8785.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// sortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
// Keys are NFC normalized first so the order matches the written bytes.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(norm.NFC.String(a)))
	b16 := utf16.Encode([]rune(norm.NFC.String(b)))
	return slices.Compare(a16, b16)
}
