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

package ice

import (
	_ "embed"
	"encoding/binary"
)

//go:generate go run ./gen

// sboxBlob is the precomputed S-box table: four contiguous 1024-entry u32
// boxes, little-endian. The content depends only on the cipher constants,
// so it is generated once (see gen/) and embedded rather than rebuilt at
// startup. Read-only after init.
//
//go:embed sbox.bin
var sboxBlob []byte

var sbox [4096]uint32

func init() {
	if len(sboxBlob) != len(sbox)*4 {
		panic("ice: embedded s-box blob has wrong size")
	}
	for i := range sbox {
		sbox[i] = binary.LittleEndian.Uint32(sboxBlob[i*4:])
	}
}
