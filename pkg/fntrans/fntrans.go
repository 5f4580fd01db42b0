// Package fntrans shortens file names into compact lowercase tokens.
//
// Names compress through a variable-width bit code: common filename
// characters take 6 bits, a secondary table of punctuation and accented
// letters takes 6+8 bits, and any other BMP character takes 6+16 bits.
// The bit stream is then transported as 4-bit groups over a 16-letter
// "betabet", producing strings safe for identifiers and URLs. Bcode and
// Bdecode are exact inverses.
package fntrans

import (
	"strings"

	"github.com/ki-ujep/metafiles/pkg/errors"
)

// primaryAlphabet holds the 62 characters with direct 6-bit codes. The
// characters displaced to make room for "-", "." and "_" (k, K, Q) live
// in the secondary table instead.
const primaryAlphabet = "abcdefghij-lmnopqrstuvwxyzABCDEFGHIJ.LMNOP_RSTUVWXYZ0123456789"

// Betabet is the 16-letter transport alphabet for 4-bit groups. It
// avoids vowels so generated tokens never spell words.
const Betabet = "bcdfghjkmprstvxz"

const (
	escapeSecond = 62
	escapeBMP    = 63
)

// secondAlphabet holds the 255 characters reachable through the 8-bit
// escape: ASCII punctuation (plus k, K, Q), then Latin-1 and Latin
// Extended-A, with the soft hyphen omitted.
var secondAlphabet = []rune(" !\"#$%&'()*+,kK/:;<=>?@[\\]^Q`{|}~" +
	" ¡¢£¤¥¦§¨©ª«¬®¯°±²³´µ¶·¸¹º»¼½¾¿" +
	"ÀÁÂÃÄÅÆÇÈÉÊËÌÍÎÏÐÑÒÓÔÕÖ×ØÙÚÛÜÝÞß" +
	"àáâãäåæçèéêëìíîïðñòóôõö÷øùúûüýþÿ" +
	"ĀāĂăĄąĆćĈĉĊċČčĎďĐđĒēĔĕĖėĘęĚěĜĝĞğĠġĢģĤĥĦħĨĩĪīĬĭĮįİı" +
	"ĲĳĴĵĶķĸĹĺĻļĽľĿŀŁłŃńŅņŇňŉŊŋŌōŎŏŐőŒœŔŕŖŗŘřŚśŜŝŞşŠš" +
	"ŢţŤťŦŧŨũŪūŬŭŮůŰűŲųŴŵŶŷŸŹźŻżŽž")

var secondIndex = func() map[rune]int {
	m := make(map[rune]int, len(secondAlphabet))
	for i, r := range secondAlphabet {
		m[r] = i
	}
	return m
}()

// BitWriter accumulates values of arbitrary bit width into a byte
// stream, most significant bit first.
type BitWriter struct {
	bitBuffer uint64
	bitCount  int
	out       []byte
}

// WriteBits appends the low 'bits' bits of value to the stream.
func (w *BitWriter) WriteBits(value uint64, bits int) {
	w.bitBuffer = (w.bitBuffer << bits) | (value & ((1 << bits) - 1))
	w.bitCount += bits
	for w.bitCount >= 8 {
		shift := w.bitCount - 8
		w.out = append(w.out, byte(w.bitBuffer>>shift))
		w.bitCount -= 8
		w.bitBuffer &= (1 << w.bitCount) - 1
	}
}

// Flush pads the final partial byte with one-bits. The decoder relies
// on the all-ones padding to detect end of stream, so there is no
// length header.
func (w *BitWriter) Flush() {
	if w.bitCount > 0 {
		pad := uint64(1<<(8-w.bitCount)) - 1
		w.out = append(w.out, byte(w.bitBuffer<<(8-w.bitCount)|pad))
		w.bitBuffer = 0
		w.bitCount = 0
	}
}

// Bytes returns the written stream.
func (w *BitWriter) Bytes() []byte {
	return w.out
}

// Reader returns a BitReader over the written stream.
func (w *BitWriter) Reader() *BitReader {
	return NewBitReader(w.Bytes())
}

// BitReader consumes a byte stream in groups of arbitrary bit width.
type BitReader struct {
	data      []byte
	index     int
	bitBuffer uint64
	bitCount  int
}

// NewBitReader wraps data for bit-level reading.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// BitsRemaining returns how many bits are left to read.
func (r *BitReader) BitsRemaining() int {
	return (len(r.data)-r.index)*8 + r.bitCount
}

// ReadBits reads the next n bits as an unsigned value.
func (r *BitReader) ReadBits(n int) (uint64, error) {
	for r.bitCount < n {
		if r.index >= len(r.data) {
			return 0, errors.New(errors.ErrNameCodec, "not enough data in bit stream")
		}
		r.bitBuffer = (r.bitBuffer << 8) | uint64(r.data[r.index])
		r.bitCount += 8
		r.index++
	}
	shift := r.bitCount - n
	value := (r.bitBuffer >> shift) & ((1 << n) - 1)
	r.bitCount -= n
	r.bitBuffer &= (1 << r.bitCount) - 1
	return value, nil
}

// Compress encodes text into the variable-width bit stream. Characters
// outside the Basic Multilingual Plane are not representable.
func Compress(text string) (*BitWriter, error) {
	w := &BitWriter{}
	for _, c := range text {
		if idx := strings.IndexRune(primaryAlphabet, c); idx >= 0 {
			w.WriteBits(uint64(idx), 6)
			continue
		}
		if idx, ok := secondIndex[c]; ok {
			w.WriteBits(escapeSecond, 6)
			w.WriteBits(uint64(idx), 8)
			continue
		}
		if c > 0xFFFF {
			return nil, errors.Newf(errors.ErrNameCodec,
				"character %q (U+%04X) is outside the BMP", c, c)
		}
		w.WriteBits(escapeBMP, 6)
		w.WriteBits(uint64(c), 16)
	}
	w.Flush()
	return w, nil
}

// Decompress decodes a stream produced by Compress. Trailing one-bit
// padding terminates decoding without error.
func Decompress(r *BitReader) (string, error) {
	var b strings.Builder
	for r.BitsRemaining() >= 6 {
		code, err := r.ReadBits(6)
		if err != nil {
			return "", err
		}
		switch {
		case code < escapeSecond:
			b.WriteByte(primaryAlphabet[code])
		case code == escapeSecond:
			if r.BitsRemaining() < 8 {
				return b.String(), nil
			}
			extra, err := r.ReadBits(8)
			if err != nil {
				return "", err
			}
			if int(extra) >= len(secondAlphabet) {
				return "", errors.Newf(errors.ErrNameCodec, "invalid secondary code %d", extra)
			}
			b.WriteRune(secondAlphabet[extra])
		default:
			if r.BitsRemaining() < 16 {
				return b.String(), nil
			}
			extra, err := r.ReadBits(16)
			if err != nil {
				return "", err
			}
			b.WriteRune(rune(extra))
		}
	}
	return b.String(), nil
}

// Bcode compresses text and re-encodes the bit stream over the betabet,
// one letter per 4 bits.
func Bcode(text string) (string, error) {
	w, err := Compress(text)
	if err != nil {
		return "", err
	}
	r := w.Reader()
	var b strings.Builder
	for r.BitsRemaining() >= 4 {
		nibble, err := r.ReadBits(4)
		if err != nil {
			return "", err
		}
		b.WriteByte(Betabet[nibble])
	}
	return b.String(), nil
}

// Bdecode reverses Bcode.
func Bdecode(text string) (string, error) {
	w := &BitWriter{}
	for _, c := range text {
		idx := strings.IndexRune(Betabet, c)
		if idx < 0 {
			return "", errors.Newf(errors.ErrNameCodec, "character %q is not in the betabet", c)
		}
		w.WriteBits(uint64(idx), 4)
	}
	w.Flush()
	return Decompress(w.Reader())
}
