package metadata

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// ErrOddLength is returned when UCS-2 data has an odd number of bytes.
var ErrOddLength = errors.New("ucs-2 data has odd length")

// EncodeUCS2 encodes s as NUL-terminated UTF-16 little endian, the layout
// Windows uses for the XP* tags.
func EncodeUCS2(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return append(out, 0, 0)
}

// DecodeUCS2 decodes UTF-16 little endian bytes, stopping at the first NUL.
func DecodeUCS2(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", ErrOddLength
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), nil
}
