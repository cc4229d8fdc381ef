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

// Package ice implements the ICE 64-bit Feistel block cipher used to protect
// pad index metadata and per-entry payloads. Blocks are independent (ECB), so
// large buffers can additionally be processed with the *Parallel variants.
package ice

import (
	"encoding/binary"
	"math/bits"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// BlockSize is the cipher block size in bytes.
const BlockSize = 8

// ErrInvalidKeyLength is returned by New for keys that are neither 8 bytes
// nor a multiple of 16 bytes. Passing such a key is a programming error.
var ErrInvalidKeyLength = errors.New("ice: invalid key length")

// parallelThreshold gates the *Parallel variants; buffers at or below this
// size are processed serially.
const parallelThreshold = 8192

// keyrot drives which rotor word each subkey draws its bits from. The first
// half is used for forward schedule builds, the second half for the mirrored
// builds of multi-segment keys.
var keyrot = [16]int{0, 1, 2, 3, 2, 1, 3, 0, 1, 3, 2, 0, 3, 1, 0, 2}

// subkey is one round subkey: two XOR words and the salt-selection mask.
type subkey [3]uint32

// Cipher holds a derived key schedule. It is safe for concurrent use once
// constructed; Encrypt/Decrypt mutate only the caller's buffer.
type Cipher struct {
	size   int
	rounds int
	sched  []subkey
}

// New derives the key schedule for key. An 8-byte key selects the 8-round
// variant used by the pad archive family; a key whose length is a multiple
// of 16 bytes (length L) selects an L-round schedule. Any other length
// returns ErrInvalidKeyLength.
func New(key []byte) (*Cipher, error) {
	c := new(Cipher)
	switch {
	case len(key) == BlockSize:
		c.size, c.rounds = 1, 8
	case len(key) > 0 && len(key)%16 == 0:
		c.size, c.rounds = len(key)/16, len(key)
	default:
		return nil, errors.Wrapf(ErrInvalidKeyLength, "%d bytes", len(key))
	}
	c.sched = make([]subkey, c.rounds)
	c.keySet(key)
	return c, nil
}

// Rounds reports the number of Feistel rounds of the derived schedule.
func (c *Cipher) Rounds() int { return c.rounds }

// schedBuild fills subkeys n..n+8 from the four 16-bit rotor words in kb.
// Every subkey slot receives 20 bits; each bit taken from a rotor word is
// replaced by its complement shifted in from the top.
func (c *Cipher) schedBuild(kb *[4]uint16, n int, rot []int) {
	for i := 0; i < 8; i++ {
		kr := rot[i]
		isk := &c.sched[n+i]
		*isk = subkey{}
		for j := 0; j < 15; j++ {
			sk := &isk[j%3]
			for k := 0; k < 4; k++ {
				idx := (kr + k) & 3
				bit := uint32(kb[idx] & 1)
				*sk = *sk<<1 | bit
				kb[idx] = kb[idx]>>1 | uint16(bit^1)<<15
			}
		}
	}
}

func (c *Cipher) keySet(key []byte) {
	if c.rounds == 8 {
		var kb [4]uint16
		for i := 0; i < 4; i++ {
			kb[3-i] = binary.BigEndian.Uint16(key[i*2:])
		}
		c.schedBuild(&kb, 0, keyrot[:8])
		return
	}
	for i := 0; i < c.size; i++ {
		var kb [4]uint16
		for j := 0; j < 4; j++ {
			kb[3-j] = binary.BigEndian.Uint16(key[i*8+j*2:])
		}
		c.schedBuild(&kb, i*8, keyrot[:8])
		c.schedBuild(&kb, c.rounds-8-i*8, keyrot[8:])
	}
}

// feistel is the ICE round function: a keyed expansion of the 32-bit half
// followed by four S-box lookups.
func feistel(p uint32, sk *subkey) uint32 {
	tr := (p & 0x3ff) | (p << 2 & 0xffc00)
	tl := (p >> 16 & 0x3ff) | (bits.RotateLeft32(p, 18) & 0xffc00)
	salt := sk[2] & (tl ^ tr)
	al := salt ^ tl ^ sk[0]
	ar := salt ^ tr ^ sk[1]
	return sbox[al>>10&0x3ff] ^
		sbox[1024+(al&0x3ff)] ^
		sbox[2048+(ar>>10&0x3ff)] ^
		sbox[3072+(ar&0x3ff)]
}

// encryptBlock transforms one 8-byte block in place. The halves are read
// big-endian and written back swapped.
func (c *Cipher) encryptBlock(b []byte) {
	l := binary.BigEndian.Uint32(b)
	r := binary.BigEndian.Uint32(b[4:])
	for i := 0; i < c.rounds; i += 2 {
		l ^= feistel(r, &c.sched[i])
		r ^= feistel(l, &c.sched[i+1])
	}
	binary.BigEndian.PutUint32(b, r)
	binary.BigEndian.PutUint32(b[4:], l)
}

func (c *Cipher) decryptBlock(b []byte) {
	l := binary.BigEndian.Uint32(b)
	r := binary.BigEndian.Uint32(b[4:])
	for i := c.rounds - 1; i > 0; i -= 2 {
		l ^= feistel(r, &c.sched[i])
		r ^= feistel(l, &c.sched[i-1])
	}
	binary.BigEndian.PutUint32(b, r)
	binary.BigEndian.PutUint32(b[4:], l)
}

// Encrypt encrypts buf in place, one independent 8-byte block at a time.
// A trailing fragment shorter than BlockSize is left untouched.
func (c *Cipher) Encrypt(buf []byte) {
	for i := 0; i+BlockSize <= len(buf); i += BlockSize {
		c.encryptBlock(buf[i : i+BlockSize])
	}
}

// Decrypt decrypts buf in place, one independent 8-byte block at a time.
// A trailing fragment shorter than BlockSize is left untouched.
func (c *Cipher) Decrypt(buf []byte) {
	for i := 0; i+BlockSize <= len(buf); i += BlockSize {
		c.decryptBlock(buf[i : i+BlockSize])
	}
}

// EncryptParallel is equivalent to Encrypt but distributes the work across
// the available CPUs for buffers above the parallel threshold.
func (c *Cipher) EncryptParallel(buf []byte) {
	c.cryptParallel(buf, c.Encrypt)
}

// DecryptParallel is equivalent to Decrypt but distributes the work across
// the available CPUs for buffers above the parallel threshold.
func (c *Cipher) DecryptParallel(buf []byte) {
	c.cryptParallel(buf, c.Decrypt)
}

// cryptParallel splits buf into one contiguous span per worker. Spans are
// aligned to the batch granularity (256 bytes for buffers of 16 KiB and up,
// 128 bytes below that) so every span except the last is a whole number of
// batches; block independence makes the result identical to the serial form.
func (c *Cipher) cryptParallel(buf []byte, crypt func([]byte)) {
	if len(buf) <= parallelThreshold {
		crypt(buf)
		return
	}
	batch := 128
	if len(buf) >= 16*1024 {
		batch = 256
	}
	workers := runtime.GOMAXPROCS(0)
	span := (len(buf)/workers/batch + 1) * batch

	var wg sync.WaitGroup
	for off := 0; off < len(buf); off += span {
		end := off + span
		if end > len(buf) {
			end = len(buf)
		}
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			crypt(p)
		}(buf[off:end])
	}
	wg.Wait()
}
