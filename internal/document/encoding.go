package document

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies the text encoding detected for a source file.
type Encoding string

const (
	UTF8       Encoding = "utf-8"
	UTF8BOM    Encoding = "utf-8-bom"
	UTF16LE    Encoding = "utf-16le"
	UTF16LEBOM Encoding = "utf-16le-bom"
	UTF16BE    Encoding = "utf-16be"
	UTF16BEBOM Encoding = "utf-16be-bom"
)

// MaxPrefixLen is the number of leading bytes needed to tell every supported
// encoding apart.
const MaxPrefixLen = 4

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding inspects at most MaxPrefixLen leading bytes. Without a byte
// order mark, UTF-16 is recognised by the zero high (or low) byte of an ASCII
// first character; anything else is UTF-8.
func DetectEncoding(prefix []byte) Encoding {
	if len(prefix) > MaxPrefixLen {
		prefix = prefix[:MaxPrefixLen]
	}
	switch {
	case bytes.HasPrefix(prefix, bomUTF8):
		return UTF8BOM
	case bytes.HasPrefix(prefix, bomUTF16LE):
		return UTF16LEBOM
	case bytes.HasPrefix(prefix, bomUTF16BE):
		return UTF16BEBOM
	case len(prefix) >= 2 && prefix[0] == 0 && prefix[1] != 0:
		return UTF16BE
	case len(prefix) >= 2 && prefix[0] != 0 && prefix[1] == 0:
		return UTF16LE
	}
	return UTF8
}

// decoder returns the transformer that converts the encoding to BOM-free
// UTF-8, or nil when the bytes can be used as-is.
func (e Encoding) decoder() *encoding.Decoder {
	switch e {
	case UTF8BOM:
		return unicode.UTF8BOM.NewDecoder()
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case UTF16LEBOM:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	case UTF16BEBOM:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	default:
		return nil
	}
}
