// Package filehash computes content digests for scanned files and
// short betabet-encoded digests of file names.
package filehash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/ki-ujep/metafiles/pkg/errors"
	"github.com/ki-ujep/metafiles/pkg/fntrans"
)

const chunkSize = 1024 * 1024

// HashFile computes the SHA-256 digest of the file at path, reading in
// 1 MiB chunks.
func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot open %s for hashing", path)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, chunkSize)); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read %s for hashing", path)
	}
	return h.Sum(nil), nil
}

// HashReader computes the SHA-256 digest of r.
func HashReader(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, errors.Wrap(err, errors.ErrFileAccess, "cannot hash stream")
	}
	return h.Sum(nil), nil
}

// HashFilename digests a file name into a short betabet token: the
// first twelve hex digits of the SHA-256 digest, one betabet letter per
// hex digit.
func HashFilename(name string) string {
	return betabetDigest(sha256.New(), name, 12)
}

// BetabetToHex converts a betabet digest token back to standard
// hexadecimal.
func BetabetToHex(token string) (string, error) {
	var out []byte
	for _, c := range token {
		idx := -1
		for i, b := range fntrans.Betabet {
			if b == c {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", errors.Newf(errors.ErrNameCodec, "character %q is not in the betabet", c)
		}
		out = append(out, "0123456789abcdef"[idx])
	}
	return string(out), nil
}

func betabetDigest(h hash.Hash, name string, digits int) string {
	h.Write([]byte(name))
	hexDigest := hex.EncodeToString(h.Sum(nil))
	if digits < len(hexDigest) {
		hexDigest = hexDigest[:digits]
	}
	out := make([]byte, len(hexDigest))
	for i := 0; i < len(hexDigest); i++ {
		out[i] = fntrans.Betabet[hexValue(hexDigest[i])]
	}
	return string(out)
}

func hexValue(c byte) int {
	if c >= 'a' {
		return int(c-'a') + 10
	}
	return int(c - '0')
}
