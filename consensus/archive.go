// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package consensus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/custodian-sys/custodian/lib/codec"
)

// Archiver writes evicted rounds to disk as zstd-compressed CBOR so
// the audit trail outlives the in-memory retention window. Round
// snapshots are text-like structured data; zstd gets good ratios on
// them at negligible cost next to the file write.
type Archiver struct {
	dir string
}

// NewArchiver creates an archiver writing into dir, creating it if
// needed.
func NewArchiver(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Archiver{dir: dir}, nil
}

// Write archives one round snapshot. The file is written to a
// temporary path and renamed into place so a crash never leaves a
// truncated archive entry.
func (a *Archiver) Write(snap RoundSnapshot) error {
	data, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding round %d snapshot: %w", snap.Round, err)
	}

	path := a.Path(snap.Round)
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}

	writer, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("initializing zstd writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing archive entry: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("flushing archive entry: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing archive file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming archive entry into place: %w", err)
	}
	return nil
}

// Read loads an archived round snapshot.
func (a *Archiver) Read(roundID uint64) (RoundSnapshot, error) {
	file, err := os.Open(a.Path(roundID))
	if err != nil {
		return RoundSnapshot{}, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return RoundSnapshot{}, fmt.Errorf("initializing zstd reader: %w", err)
	}
	defer reader.Close()

	var snap RoundSnapshot
	if err := codec.NewDecoder(reader).Decode(&snap); err != nil {
		return RoundSnapshot{}, fmt.Errorf("decoding archived round %d: %w", roundID, err)
	}
	return snap, nil
}

// Path returns the archive file path for a round id.
func (a *Archiver) Path(roundID uint64) string {
	return filepath.Join(a.dir, fmt.Sprintf("round-%010d.cbor.zst", roundID))
}
