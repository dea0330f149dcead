package compat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FastStart reports whether an MP4's metadata precedes its media data
type FastStart int

const (
	Inconclusive FastStart = iota
	Ready
	NotReady
)

func (f FastStart) String() string {
	switch f {
	case Ready:
		return "ready"
	case NotReady:
		return "not_ready"
	default:
		return "inconclusive"
	}
}

func (f FastStart) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

var (
	// ErrScanTruncated means the scan limit was reached before moov or mdat
	ErrScanTruncated = errors.New("box scan truncated")
	// ErrMalformedBox means a box header could not be walked
	ErrMalformedBox = errors.New("malformed box header")
)

// DefaultScanLimit bounds how far into a file ScanBoxes will look
const DefaultScanLimit = 1 << 20

// ScanBoxes walks top-level ISO-BMFF boxes from the start of r until it
// meets moov or mdat. Box headers starting at or past limit are not read.
// Running off the end of the data is Inconclusive with a nil error.
func ScanBoxes(r io.ReaderAt, size, limit int64) (FastStart, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	var hdr [16]byte
	var off int64
	for {
		if off >= limit {
			return Inconclusive, fmt.Errorf("%w at offset %d (limit %d)", ErrScanTruncated, off, limit)
		}
		if off+8 > size {
			return Inconclusive, nil
		}
		if _, err := r.ReadAt(hdr[:8], off); err != nil {
			return Inconclusive, fmt.Errorf("read box header at %d: %w", off, err)
		}

		boxSize := int64(binary.BigEndian.Uint32(hdr[:4]))
		switch string(hdr[4:8]) {
		case "moov":
			return Ready, nil
		case "mdat":
			return NotReady, nil
		}

		switch {
		case boxSize == 1:
			if off+16 > size {
				return Inconclusive, nil
			}
			if _, err := r.ReadAt(hdr[8:16], off+8); err != nil {
				return Inconclusive, fmt.Errorf("read largesize at %d: %w", off+8, err)
			}
			large := binary.BigEndian.Uint64(hdr[8:16])
			if large < 16 || large > uint64(size) {
				return Inconclusive, fmt.Errorf("%w: largesize %d at %d", ErrMalformedBox, large, off)
			}
			boxSize = int64(large)
		case boxSize == 0:
			// box extends to end of file without being moov or mdat
			return Inconclusive, nil
		case boxSize < 8:
			return Inconclusive, fmt.Errorf("%w: size %d at %d", ErrMalformedBox, boxSize, off)
		}

		off += boxSize
	}
}
