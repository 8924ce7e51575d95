package codec

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
)

// Encoder accumulates the binary encoding of an operation group.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Byte appends a single byte.
func (e *Encoder) Byte(b byte) {
	e.buf = append(e.buf, b)
}

// Raw appends b unchanged.
func (e *Encoder) Raw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Bool appends 0xff for true and 0x00 for false.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 0xff)
		return
	}
	e.buf = append(e.buf, 0x00)
}

// Uint32 appends v big-endian, the length prefix used for variable fields.
func (e *Encoder) Uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

// Dynamic appends b prefixed with its four byte length.
func (e *Encoder) Dynamic(b []byte) {
	e.Uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// Natural appends n as a zarith natural number.
func (e *Encoder) Natural(n uint64) {
	for n >= 0x80 {
		e.buf = append(e.buf, byte(n)|0x80)
		n >>= 7
	}
	e.buf = append(e.buf, byte(n))
}

// Integer appends v as a zarith signed integer: the first byte carries the
// sign bit and six value bits, the following bytes seven value bits each.
func (e *Encoder) Integer(v *big.Int) {
	abs := new(big.Int).Abs(v)

	first := byte(new(big.Int).And(abs, big.NewInt(0x3f)).Uint64())
	if v.Sign() < 0 {
		first |= 0x40
	}
	abs.Rsh(abs, 6)
	if abs.Sign() > 0 {
		first |= 0x80
	}
	e.buf = append(e.buf, first)

	mask := big.NewInt(0x7f)
	for abs.Sign() > 0 {
		b := byte(new(big.Int).And(abs, mask).Uint64())
		abs.Rsh(abs, 7)
		if abs.Sign() > 0 {
			b |= 0x80
		}
		e.buf = append(e.buf, b)
	}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Hex returns the accumulated encoding as lowercase hex.
func (e *Encoder) Hex() string {
	return hex.EncodeToString(e.buf)
}
