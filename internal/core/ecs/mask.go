package ecs

import "math/bits"

// BlockSize is the slot count of every block level and the width of Mask.
const BlockSize = 128

// Mask is a 128-bit set. The zero value is empty.
type Mask struct {
	lo, hi uint64
}

// FullMask has every bit set.
var FullMask = Mask{lo: ^uint64(0), hi: ^uint64(0)}

// MaskOf builds a mask with the given bits set.
func MaskOf[I ~uint8 | ~uint16 | ~uint32 | ~uint | ~int](idx ...I) Mask {
	var m Mask
	for _, i := range idx {
		m.Set(uint(i))
	}
	return m
}

func (m *Mask) Set(i uint) {
	if i < 64 {
		m.lo |= 1 << i
	} else {
		m.hi |= 1 << (i - 64)
	}
}

func (m *Mask) Clear(i uint) {
	if i < 64 {
		m.lo &^= 1 << i
	} else {
		m.hi &^= 1 << (i - 64)
	}
}

func (m Mask) Has(i uint) bool {
	if i < 64 {
		return m.lo&(1<<i) != 0
	}
	return m.hi&(1<<(i-64)) != 0
}

func (m Mask) And(o Mask) Mask { return Mask{m.lo & o.lo, m.hi & o.hi} }
func (m Mask) Or(o Mask) Mask { return Mask{m.lo | o.lo, m.hi | o.hi} }
func (m Mask) AndNot(o Mask) Mask { return Mask{m.lo &^ o.lo, m.hi &^ o.hi} }
func (m Mask) IsZero() bool { return m.lo == 0 && m.hi == 0 }
func (m Mask) Intersects(o Mask) bool {
	return m.lo&o.lo != 0 || m.hi&o.hi != 0
}

// Count returns the number of set bits.
func (m Mask) Count() int { return bits.OnesCount64(m.lo) + bits.OnesCount64(m.hi) }

// Each calls fn for every set bit in ascending order.
func (m Mask) Each(fn func(i uint)) {
	for w := m.lo; w != 0; w &= w - 1 {
		fn(uint(bits.TrailingZeros64(w)))
	}
	for w := m.hi; w != 0; w &= w - 1 {
		fn(64 + uint(bits.TrailingZeros64(w)))
	}
}

// Bits returns the set bit indices in ascending order.
func (m Mask) Bits() []uint {
	out := make([]uint, 0, m.Count())
	m.Each(func(i uint) { out = append(out, i) })
	return out
}

// First returns the lowest set bit. It returns BlockSize for an empty mask.
func (m Mask) First() uint {
	if m.lo != 0 {
		return uint(bits.TrailingZeros64(m.lo))
	}
	if m.hi != 0 {
		return 64 + uint(bits.TrailingZeros64(m.hi))
	}
	return BlockSize
}
