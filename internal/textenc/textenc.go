// Package textenc decodes small text files whose encoding is not declared.
// Dependency lists written by Windows shells are frequently UTF-16, while
// everything else is UTF-8 or a single-byte superset of ASCII.
package textenc

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names the detected encoding of a byte slice.
type Encoding string

const (
	UTF8    Encoding = "utf-8"
	UTF16LE Encoding = "utf-16le"
	UTF16BE Encoding = "utf-16be"
)

// sniffWindow bounds how many leading bytes the NUL heuristic inspects.
const sniffWindow = 512

// Sniff reports the encoding of data. A byte-order mark wins; otherwise a
// file whose odd (or even) bytes are mostly NUL is treated as BOM-less UTF-16.
func Sniff(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return UTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return UTF16BE
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8
	}
	window := data
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	pairs := len(window) / 2
	if pairs == 0 {
		return UTF8
	}
	var evenNUL, oddNUL int
	for i := 0; i+1 < len(window); i += 2 {
		if window[i] == 0 {
			evenNUL++
		}
		if window[i+1] == 0 {
			oddNUL++
		}
	}
	// ASCII text in UTF-16 leaves one byte of every pair zero.
	switch {
	case oddNUL*10 >= pairs*6 && evenNUL*10 < pairs*2:
		return UTF16LE
	case evenNUL*10 >= pairs*6 && oddNUL*10 < pairs*2:
		return UTF16BE
	}
	return UTF8
}

// Decode converts data to a UTF-8 string, stripping any byte-order mark.
func Decode(data []byte) (string, error) {
	var enc encoding.Encoding
	switch Sniff(data) {
	case UTF16LE:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case UTF16BE:
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode utf-16 text: %w", err)
	}
	return string(out), nil
}

// ReadFile reads path and decodes it with Decode.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := Decode(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}
