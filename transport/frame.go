// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the ceiling on a single frame body. The declared
// length is checked against it before any body byte is read.
const MaxFrameSize = 64 * 1024

// ErrFrameTooLarge is returned by ReadFrame when a frame's declared
// length exceeds MaxFrameSize, and by WriteFrame when asked to send
// one. After a read-side hit the stream is desynchronized (the
// oversized body was never consumed), so the connection must close.
var ErrFrameTooLarge = errors.New("transport: frame exceeds size ceiling")

// WriteFrame writes one frame: a 4-byte big-endian length followed by
// the body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes, ceiling %d", ErrFrameTooLarge, len(body), MaxFrameSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one frame body. A declared length beyond
// MaxFrameSize fails with ErrFrameTooLarge before a single body byte
// is read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: declared %d bytes, ceiling %d", ErrFrameTooLarge, length, MaxFrameSize)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading %d-byte frame body: %w", length, err)
	}
	return body, nil
}
