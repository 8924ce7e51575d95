package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrTruncated is returned when the input ends in the middle of a field.
var ErrTruncated = errors.New("unexpected end of input")

// Decoder reads the binary encoding produced by Encoder.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder returns a decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Offset returns the current read position.
func (d *Decoder) Offset() int {
	return d.pos
}

// Byte reads a single byte.
func (d *Decoder) Byte() (byte, error) {
	if d.Remaining() < 1 {
		return 0, ErrTruncated
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

// Raw reads exactly n bytes.
func (d *Decoder) Raw(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", n, d.pos, ErrTruncated)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Bool reads a boolean byte, which must be 0x00 or 0xff.
func (d *Decoder) Bool() (bool, error) {
	b, err := d.Byte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0x00:
		return false, nil
	case 0xff:
		return true, nil
	default:
		return false, fmt.Errorf("invalid boolean byte 0x%02x at offset %d", b, d.pos-1)
	}
}

// Uint32 reads a big-endian four byte integer.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Dynamic reads a four byte length followed by that many bytes.
func (d *Decoder) Dynamic() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.Raw(int(n))
}

// Natural reads a zarith natural number that fits in 64 bits.
func (d *Decoder) Natural() (uint64, error) {
	var n uint64
	for shift := uint(0); ; shift += 7 {
		b, err := d.Byte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 || (shift == 63 && b&0x7f > 1) {
			return 0, fmt.Errorf("zarith natural overflows 64 bits at offset %d", d.pos-1)
		}
		n |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return n, nil
		}
	}
}

// Integer reads a zarith signed integer of arbitrary size.
func (d *Decoder) Integer() (*big.Int, error) {
	first, err := d.Byte()
	if err != nil {
		return nil, err
	}

	v := big.NewInt(int64(first & 0x3f))
	negative := first&0x40 != 0
	more := first&0x80 != 0

	for shift := uint(6); more; shift += 7 {
		b, err := d.Byte()
		if err != nil {
			return nil, err
		}
		part := new(big.Int).Lsh(big.NewInt(int64(b&0x7f)), shift)
		v.Or(v, part)
		more = b&0x80 != 0
	}

	if negative {
		v.Neg(v)
	}
	return v, nil
}
