// Package atom implements a minimal ISO-BMFF (MP4/MOV) top-level box
// scanner: just enough to locate the moov and mdat atom offsets that the
// faststart post-processor needs to decide whether a file already streams
// cleanly.
package atom

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// headerSize is the size of a standard 32-bit-size ISO-BMFF box header:
// 4 bytes size + 4 bytes type.
const headerSize = 8

// extendedHeaderSize is the header size once a 64-bit extended size has
// been read (the initial 8 bytes plus the 8-byte extended size field).
const extendedHeaderSize = 16

// ScanTopLevelAtoms returns the byte offset of the first "moov" and first
// "mdat" top-level atom in the file at path. The scan never descends into
// container atoms and stops as soon as both offsets are known. A partial
// result (containing whichever of moov/mdat were found) is returned
// alongside any scan error for malformed input.
func ScanTopLevelAtoms(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return scan(f, info.Size())
}

func scan(r io.ReadSeeker, fileSize int64) (map[string]int64, error) {
	offsets := make(map[string]int64)

	var offset int64
	header := make([]byte, headerSize)

	for offset+headerSize <= fileSize {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return offsets, err
		}

		atomSize := int64(binary.BigEndian.Uint32(header[0:4]))
		atomType := string(header[4:8])
		hdrSize := int64(headerSize)

		if atomSize == 1 {
			ext := make([]byte, 8)
			if _, err := io.ReadFull(r, ext); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					break
				}
				return offsets, err
			}
			atomSize = int64(binary.BigEndian.Uint64(ext))
			hdrSize = extendedHeaderSize
		} else if atomSize == 0 {
			atomSize = fileSize - offset
		}

		if atomType == "moov" || atomType == "mdat" {
			if _, seen := offsets[atomType]; !seen {
				offsets[atomType] = offset
				_, hasMoov := offsets["moov"]
				_, hasMdat := offsets["mdat"]
				if hasMoov && hasMdat {
					return offsets, nil
				}
			}
		}

		if atomSize < hdrSize {
			return offsets, fmt.Errorf("atom %q at offset %d: declared size %d smaller than header size %d", atomType, offset, atomSize, hdrSize)
		}

		if _, err := r.Seek(atomSize-hdrSize, io.SeekCurrent); err != nil {
			return offsets, err
		}
		offset += atomSize
	}

	return offsets, nil
}
