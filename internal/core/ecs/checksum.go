package ecs

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Digest is a 256-bit BLAKE2b digest of world state.
type Digest [blake2b.Size256]byte

func (d Digest) String() string { return fmt.Sprintf("%x", d[:8]) }

func fixedSize[T any]() bool {
	var zero T
	return binary.Size(zero) >= 0
}

// hash streams (entity, value) pairs in entity order. Fixed-size values are
// encoded little-endian, anything else through its Go-syntax form.
func (s *Storage[T]) hash(w io.Writer) error {
	var hdr [4]byte
	var err error
	s.each(func(e Entity, v *T) {
		if err != nil {
			return
		}
		binary.LittleEndian.PutUint32(hdr[:], uint32(e))
		if _, err = w.Write(hdr[:]); err != nil {
			return
		}
		if s.fixed {
			err = binary.Write(w, binary.LittleEndian, *v)
			return
		}
		_, err = fmt.Fprintf(w, "%#v", *v)
	})
	if err != nil {
		return fmt.Errorf("hash %s: %w", s.name, err)
	}
	return nil
}

// Checksum digests every non-temporary storage in component id order. Two
// worlds with the same registrations and the same values produce the same
// digest regardless of block layout or history.
func (w *World) Checksum() (Digest, error) {
	var out Digest
	h, err := blake2b.New256(nil)
	if err != nil {
		return out, err
	}
	var hdr [5]byte
	for _, s := range w.registry.stores {
		if s.Temporary() {
			continue
		}
		hdr[0] = byte(s.ID())
		binary.LittleEndian.PutUint32(hdr[1:], uint32(s.Len()))
		h.Write(hdr[:])
		if err := s.hash(h); err != nil {
			return out, err
		}
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}
