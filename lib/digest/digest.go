// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes BLAKE3 digests of observation payloads. The
// transport digests every admitted payload so the engine's record of a
// round carries a verifiable fingerprint of exactly what each node
// submitted, without retaining the payload bytes themselves.
package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Digest is a 32-byte BLAKE3 keyed hash of an observation payload.
type Digest [Size]byte

// observationDomainKey is the BLAKE3 key for the observation-payload
// domain. Domain separation keeps payload digests from colliding with
// hashes of the same bytes computed in any other context. The value is
// the ASCII domain name zero-padded to 32 bytes; changing it
// invalidates all recorded digests.
var observationDomainKey = [32]byte{
	'c', 'u', 's', 't', 'o', 'd', 'i', 'a', 'n', '.', 'o', 'b', 's', 'e', 'r', 'v',
	'a', 't', 'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sum computes the observation-domain digest of data.
func Sum(data []byte) Digest {
	hasher, err := blake3.NewKeyed(observationDomainKey[:])
	if err != nil {
		// NewKeyed fails only for a key of the wrong length; the key
		// is a compile-time 32-byte array.
		panic("digest: keyed hasher initialization failed: " + err.Error())
	}
	hasher.Write(data)

	var out Digest
	copy(out[:], hasher.Sum(nil))
	return out
}

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the zero value (no payload
// recorded).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalBinary encodes the digest as its raw 32 bytes. CBOR encoders
// honor this, so digests travel as byte strings rather than integer
// arrays.
func (d Digest) MarshalBinary() ([]byte, error) {
	return d[:], nil
}

// UnmarshalBinary decodes a digest from raw bytes.
func (d *Digest) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("digest: got %d bytes, want %d", len(data), Size)
	}
	copy(d[:], data)
	return nil
}
