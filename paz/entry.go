// The MIT License (MIT)
//
// # Copyright (c) 2025 padtools
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package paz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/padtools/pazex/ice"
)

// pabrMagic marks payloads that earlier tooling already decrypted; they must
// not go through the cipher again.
var pabrMagic = []byte("PABR")

// parallelDecryptMin is the payload size above which the chunked cipher
// path is used.
const parallelDecryptMin = 8192

// Archive retrieves entry payloads from the numbered volume files in one
// directory. Safe for concurrent use.
type Archive struct {
	dir    string
	cipher *ice.Cipher
}

// OpenArchive prepares retrieval from the volume directory dir using the
// given 8-byte archive key.
func OpenArchive(dir string, key []byte) (*Archive, error) {
	cipher, err := ice.New(key)
	if err != nil {
		return nil, err
	}
	return &Archive{dir: dir, cipher: cipher}, nil
}

// Dir returns the volume directory.
func (a *Archive) Dir() string { return a.dir }

// VolumePath composes the path of one numbered volume file.
func (a *Archive) VolumePath(volume uint32) string {
	return filepath.Join(a.dir, fmt.Sprintf("pad%05d.paz", volume))
}

// ReadEntry maps the entry's volume and returns the original payload bytes:
// decrypted if the payload looks encrypted, decompressed if it carries the
// archive's compression container, and truncated to the entry's original
// size otherwise (volumes pad payloads up to the cipher block alignment).
func (a *Archive) ReadEntry(e Entry) ([]byte, error) {
	r, err := mmap.Open(a.VolumePath(e.Volume))
	if err != nil {
		return nil, errors.Wrapf(err, "paz: open volume %d", e.Volume)
	}
	defer r.Close()

	end := int64(e.Offset) + int64(e.CompressedSize)
	if end > int64(r.Len()) {
		return nil, errors.Errorf("paz: volume %d: payload [%d:%d] beyond end %d",
			e.Volume, e.Offset, end, r.Len())
	}

	buf := make([]byte, e.CompressedSize)
	if _, err := r.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, errors.Wrapf(err, "paz: read volume %d", e.Volume)
	}
	atomic.AddUint64(&DefaultStats.BytesRead, uint64(len(buf)))

	if needsDecrypt(buf) {
		if len(buf) > parallelDecryptMin {
			a.cipher.DecryptParallel(buf)
		} else {
			a.cipher.Decrypt(buf)
		}
		atomic.AddUint64(&DefaultStats.PayloadsDecrypted, 1)
	}

	if isCompressedContainer(buf, e.OriginalSize) {
		out := make([]byte, e.OriginalSize)
		n, err := Decompress(buf, out)
		if err != nil {
			return nil, err
		}
		atomic.AddUint64(&DefaultStats.PayloadsDecompressed, 1)
		return out[:n], nil
	}

	if len(buf) > int(e.OriginalSize) {
		buf = buf[:e.OriginalSize]
	}
	return buf, nil
}

// needsDecrypt decides whether a raw payload still carries the cipher layer.
// A length that is not a whole number of cipher blocks is definitively
// cleartext; the PABR magic marks a payload that was already decrypted.
func needsDecrypt(buf []byte) bool {
	if len(buf)%ice.BlockSize != 0 {
		return false
	}
	if len(buf) >= 4 && bytes.Equal(buf[:4], pabrMagic) {
		return false
	}
	return true
}

// isCompressedContainer recognises the compression container: marker byte,
// minimum header, and the header's decompressed length cross-checked against
// the index record.
func isCompressedContainer(buf []byte, originalSize uint32) bool {
	return len(buf) > 9 &&
		(buf[0] == 0x6E || buf[0] == 0x6F) &&
		binary.LittleEndian.Uint32(buf[5:9]) == originalSize
}
