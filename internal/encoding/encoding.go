// Package encoding provides the single-byte text codecs used where the
// server must interpret wire bytes as text: news aggregation and the
// client info dump. Everything else passes byte strings through
// untouched, so a client's encoding survives the round trip.
package encoding

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Codec converts between wire bytes and Go strings. Encode replaces
// unmappable runes with '?' rather than failing; classic clients would
// rather see a placeholder than lose an article.
type Codec interface {
	Name() string
	Decode(data []byte) string
	Encode(s string) []byte
}

// ForName returns the codec for a configured encoding name.
func ForName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "macroman":
		return charmapCodec{name: "macroman", cm: charmap.Macintosh}, nil
	case "latin1", "iso8859-1", "iso-8859-1":
		return charmapCodec{name: "latin1", cm: charmap.ISO8859_1}, nil
	case "ascii":
		return asciiCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown text encoding %q", name)
	}
}

// charmapCodec maps through an x/text single-byte character map.
type charmapCodec struct {
	name string
	cm   *charmap.Charmap
}

func (c charmapCodec) Name() string { return c.name }

func (c charmapCodec) Decode(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, by := range data {
		b.WriteRune(c.cm.DecodeByte(by))
	}
	return b.String()
}

func (c charmapCodec) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		by, ok := c.cm.EncodeRune(r)
		if !ok {
			by = '?'
		}
		out = append(out, by)
	}
	return out
}

// asciiCodec passes 7-bit bytes through and squashes the rest to '?'.
type asciiCodec struct{}

func (asciiCodec) Name() string { return "ascii" }

func (asciiCodec) Decode(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b < 0x80 {
			out[i] = b
		} else {
			out[i] = '?'
		}
	}
	return string(out)
}

func (asciiCodec) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}
