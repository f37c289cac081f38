// Package hash computes the content fingerprint used to deduplicate and
// detect changes to indexed files.
package hash

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/corpusindex/corpusindex/internal/errors"
)

// windowSize is the number of bytes read from each end of a file for the
// head/tail hash window.
const windowSize = 64 * 1024

// Hash returns a 64-hex-digit SHA-256 fingerprint for the file at path.
//
// Large files are fingerprinted from a head window, a tail window (only when
// the file is bigger than two windows), and the exact file size, rather than
// their full content — content this size is rare to collide on and full reads
// of multi-gigabyte video files would make every rescan I/O-bound.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.IOError(fmt.Sprintf("open %s for hashing", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.IOError(fmt.Sprintf("stat %s for hashing", path), err)
	}
	size := info.Size()

	h := sha256.New()

	head := make([]byte, windowSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.IOError(fmt.Sprintf("read head of %s", path), err)
	}
	h.Write(head[:n])

	if size > 2*windowSize {
		if _, err := f.Seek(-windowSize, io.SeekEnd); err != nil {
			return "", errors.IOError(fmt.Sprintf("seek tail of %s", path), err)
		}
		tail := make([]byte, windowSize)
		n, err := io.ReadFull(f, tail)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return "", errors.IOError(fmt.Sprintf("read tail of %s", path), err)
		}
		h.Write(tail[:n])
	}

	h.Write([]byte(strconv.FormatInt(size, 10)))

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
