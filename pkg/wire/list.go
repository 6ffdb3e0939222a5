package wire

import (
	"fmt"
	"math/bits"
)

// EncodeList appends every element of items in order. The element count is
// carried elsewhere, usually in the surrounding header.
func EncodeList[T Marshaler](e *Encoder, items []T) {
	for _, item := range items {
		item.MarshalWire(e)
	}
}

// DecodeList reads exactly count elements. The count must come from an
// earlier field; it is never inferred from the remaining byte length.
func DecodeList[T any, PT interface {
	*T
	Unmarshaler
}](d *Decoder, count int) ([]T, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative list count %d", ErrMalformed, count)
	}
	// Every element occupies at least one byte, so a count larger than the
	// remaining input is already known to be inconsistent.
	if count > d.Remaining() {
		return nil, fmt.Errorf("%w: list of %d elements with %d bytes left", ErrMalformed, count, d.Remaining())
	}
	out := make([]T, count)
	for i := range out {
		if err := PT(&out[i]).UnmarshalWire(d); err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
	}
	return out, nil
}

// Put32List appends a list of CARD32 values.
func Put32List(e *Encoder, values []uint32) {
	for _, v := range values {
		e.Put32(v)
	}
}

// Get32List reads count CARD32 values.
func Get32List(d *Decoder, count int) ([]uint32, error) {
	if count < 0 || count*4 > d.Remaining() {
		return nil, fmt.Errorf("%w: list of %d CARD32 with %d bytes left", ErrMalformed, count, d.Remaining())
	}
	out := make([]uint32, count)
	for i := range out {
		v, err := d.Get32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ValueList is the wire form of a set of optional 32-bit fields: a presence
// mask with one bit per field followed by the values of the set bits in
// ascending bit order, each occupying four bytes.
type ValueList struct {
	mask   uint32
	values [32]uint32
}

// Set stores value for the field identified by bit, which must have exactly
// one bit set.
func (v *ValueList) Set(bit uint32, value uint32) {
	if bits.OnesCount32(bit) != 1 {
		panic(fmt.Sprintf("wire: value-list bit %#x is not a single bit", bit))
	}
	v.mask |= bit
	v.values[bits.TrailingZeros32(bit)] = value
}

func (v ValueList) Get(bit uint32) (uint32, bool) {
	if v.mask&bit == 0 || bits.OnesCount32(bit) != 1 {
		return 0, false
	}
	return v.values[bits.TrailingZeros32(bit)], true
}

func (v ValueList) Mask() uint32 {
	return v.mask
}

func (v ValueList) Len() int {
	return bits.OnesCount32(v.mask)
}

// EncodeValues appends the present values. The mask itself is written by
// the caller at the position its request layout dictates.
func (v ValueList) EncodeValues(e *Encoder) {
	for m := v.mask; m != 0; m &= m - 1 {
		e.Put32(v.values[bits.TrailingZeros32(m)])
	}
}

// DecodeValueList reads one value for every bit set in mask.
func DecodeValueList(d *Decoder, mask uint32) (ValueList, error) {
	v := ValueList{mask: mask}
	for m := mask; m != 0; m &= m - 1 {
		value, err := d.Get32()
		if err != nil {
			return ValueList{}, err
		}
		v.values[bits.TrailingZeros32(m)] = value
	}
	return v, nil
}
