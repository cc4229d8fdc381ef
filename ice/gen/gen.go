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

// Generates sbox.bin, the 16 KiB ICE S-box blob embedded by the ice package.
// Run via "go generate ./ice".
package main

import (
	"encoding/binary"
	"log"
	"os"
)

var smod = [4][4]uint32{
	{333, 313, 505, 369},
	{379, 375, 319, 391},
	{361, 445, 451, 397},
	{397, 425, 395, 505},
}

var sxor = [4][4]uint32{
	{0x83, 0x85, 0x9b, 0xcd},
	{0xcc, 0xa7, 0xad, 0x41},
	{0x4b, 0x2e, 0xd4, 0x33},
	{0xea, 0xcb, 0x2e, 0x04},
}

var pbox = [32]uint32{
	0x00000001, 0x00000080, 0x00000400, 0x00002000, 0x00080000, 0x00200000, 0x01000000, 0x40000000,
	0x00000008, 0x00000020, 0x00000100, 0x00004000, 0x00010000, 0x00800000, 0x04000000, 0x20000000,
	0x00000004, 0x00000010, 0x00000200, 0x00008000, 0x00020000, 0x00400000, 0x08000000, 0x10000000,
	0x00000002, 0x00000040, 0x00000800, 0x00001000, 0x00040000, 0x00100000, 0x02000000, 0x80000000,
}

// gfMult multiplies a and b in GF(2^8) reduced by modulus m.
func gfMult(a, b, m uint32) uint32 {
	var res uint32
	for b != 0 {
		if b&1 != 0 {
			res ^= a
		}
		a <<= 1
		b >>= 1
		if a >= 256 {
			a ^= m
		}
	}
	return res
}

// gfExp7 raises b to the 7th power in GF(2^8).
func gfExp7(b, m uint32) uint32 {
	if b == 0 {
		return 0
	}
	x := gfMult(b, b, m)
	x = gfMult(b, x, m)
	x = gfMult(x, x, m)
	return gfMult(b, x, m)
}

// perm32 spreads the bits of x through the fixed 32-bit permutation.
func perm32(x uint32) uint32 {
	var res uint32
	for _, pb := range pbox {
		if x&1 != 0 {
			res |= pb
		}
		x >>= 1
	}
	return res
}

func main() {
	blob := make([]byte, 4*4096)
	for i := 0; i < 1024; i++ {
		col := uint32(i>>1) & 0xff
		row := (i & 1) | ((i & 0x200) >> 8)
		for s := 0; s < 4; s++ {
			v := perm32(gfExp7(col^sxor[s][row], smod[s][row]) << (24 - 8*s))
			binary.LittleEndian.PutUint32(blob[(s*1024+i)*4:], v)
		}
	}
	if err := os.WriteFile("sbox.bin", blob, 0644); err != nil {
		log.Fatal(err)
	}
}
