// Package fuse holds the byte container for fuse and lock-bit values read
// from (or written to) a microcontroller.
package fuse

import "fmt"

// Unset marks a byte position whose value is not known, e.g. because it has
// not been read from the device yet.
const Unset = -1

// ByteValues is a fixed-size container of fuse or lock-bit byte values for
// one MCU. Each position holds 0..255 or Unset.
type ByteValues struct {
	mcuID  string
	values []int
}

// New returns a container for the given MCU with count bytes, all Unset.
func New(mcuID string, count int) *ByteValues {
	values := make([]int, count)
	for i := range values {
		values[i] = Unset
	}
	return &ByteValues{mcuID: mcuID, values: values}
}

// MCUID returns the MCU these values belong to.
func (b *ByteValues) MCUID() string { return b.mcuID }

// Count returns the number of byte positions.
func (b *ByteValues) Count() int { return len(b.values) }

// Set stores value at index. The value must be 0..255 or Unset.
func (b *ByteValues) Set(index, value int) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}
	if value != Unset && (value < 0 || value > 0xff) {
		return fmt.Errorf("%d is not a byte value", value)
	}
	b.values[index] = value
	return nil
}

// Get returns the value at index: 0..255, or Unset.
func (b *ByteValues) Get(index int) (int, error) {
	if err := b.checkIndex(index); err != nil {
		return Unset, err
	}
	return b.values[index], nil
}

// SetAll copies values into the container. A shorter source leaves the
// remaining positions untouched; extra source values are ignored. The
// copied values are not range checked.
func (b *ByteValues) SetAll(values []int) {
	copy(b.values, values)
}

// All returns a copy of all byte values.
func (b *ByteValues) All() []int {
	out := make([]int, len(b.values))
	copy(out, b.values)
	return out
}

// Clear resets every position to Unset.
func (b *ByteValues) Clear() {
	for i := range b.values {
		b.values[i] = Unset
	}
}

func (b *ByteValues) checkIndex(index int) error {
	if index < 0 || index >= len(b.values) {
		return fmt.Errorf("byte index %d out of range [0,%d)", index, len(b.values))
	}
	return nil
}
