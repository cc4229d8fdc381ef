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
	"encoding/binary"
	"log"

	"github.com/pkg/errors"
)

// Decompression error kinds. The batch extractor treats all of them as a
// missing entry and moves on.
var (
	ErrTruncatedData        = errors.New("paz: truncated compressed data")
	ErrCorruptedData        = errors.New("paz: corrupted compressed data")
	ErrOutputBufferTooSmall = errors.New("paz: output buffer too small")
)

// literalRunLengths maps the low four bits of the group header to the number
// of literal bytes a literal token carries.
var literalRunLengths = [16]byte{4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0}

// Decompress expands the token-stream container in input into output and
// returns the number of bytes produced. output must be at least as large as
// the container's stated decompressed length. If the input runs short before
// the stated length is reached, the short length is returned with a nil
// error; the condition is logged because it may mask a corrupted volume.
func Decompress(input, output []byte) (int, error) {
	if len(input) == 0 {
		return 0, nil
	}

	flags := input[0]
	target, compLen, headerSize, err := parseContainerHeader(input)
	if err != nil {
		return 0, err
	}
	if len(input) < compLen {
		return 0, errors.Wrapf(ErrTruncatedData, "container claims %d bytes, have %d", compLen, len(input))
	}
	input = input[:compLen]
	if len(output) < target {
		return 0, errors.Wrapf(ErrOutputBufferTooSmall, "need %d, have %d", target, len(output))
	}

	// flag bit 0 clear: raw literal body, no token stream
	if flags&0x01 == 0 {
		if len(input) < headerSize+target {
			return 0, errors.Wrapf(ErrTruncatedData, "stored body short: need %d, have %d", target, len(input)-headerSize)
		}
		copy(output[:target], input[headerSize:])
		return target, nil
	}

	return unpack(input, output, target, headerSize)
}

// parseContainerHeader reads the variable-size container header: flag bit 1
// selects the 9-byte form with u32 lengths over the 3-byte form with u8
// lengths.
func parseContainerHeader(input []byte) (target, compLen, headerSize int, err error) {
	if input[0]&0x02 != 0 {
		if len(input) < 9 {
			return 0, 0, 0, errors.Wrap(ErrTruncatedData, "short wide header")
		}
		compLen = int(binary.LittleEndian.Uint32(input[1:5]))
		target = int(binary.LittleEndian.Uint32(input[5:9]))
		return target, compLen, 9, nil
	}
	if len(input) < 3 {
		return 0, 0, 0, errors.Wrap(ErrTruncatedData, "short narrow header")
	}
	return int(input[2]), int(input[1]), 3, nil
}

func unpack(input, output []byte, target, start int) (int, error) {
	inIdx := start
	outIdx := 0
	group := uint32(1)
	inLen := len(input)

	for outIdx < target && inIdx < inLen {
		// shifted down to the sentinel: fetch the next group word
		if group == 1 {
			if inIdx+4 > inLen {
				break
			}
			group = binary.LittleEndian.Uint32(input[inIdx:])
			inIdx += 4
		}

		if group&1 != 0 {
			// match token: back-reference into the produced output
			if inIdx+4 > inLen {
				break
			}
			h := binary.LittleEndian.Uint32(input[inIdx:])
			dist, length, step := parseMatchToken(h)
			inIdx += step

			if outIdx < dist || outIdx+length > len(output) {
				return 0, errors.Wrapf(ErrCorruptedData, "match dist=%d len=%d at out=%d", dist, length, outIdx)
			}
			// bytewise on purpose: dist < length implements run-length fill
			for i := 0; i < length; i++ {
				output[outIdx+i] = output[outIdx-dist+i]
			}
			outIdx += length
			group >>= 1
		} else {
			litLen := int(literalRunLengths[group&0xF])
			if outIdx+4 > len(output) || inIdx+4 > inLen {
				break
			}
			copy(output[outIdx:outIdx+litLen], input[inIdx:])
			outIdx += litLen
			inIdx += litLen
			group >>= uint(litLen)
		}
	}

	return drainTail(input, output, outIdx, inIdx, target, group)
}

// parseMatchToken decodes a match header into (distance, length, encoded
// size). Tokens are 1 to 4 bytes; the two low bits select the layout.
func parseMatchToken(h uint32) (dist, length, step int) {
	switch {
	case h&0x03 == 0x03 && h&0x7F == 0x03:
		return int(h >> 15), int(h>>7&0xFF) + 3, 4
	case h&0x03 == 0x03:
		return int(h >> 7 & 0x1FFFF), int(h>>2&0x1F) + 2, 3
	case h&0x03 == 0x02:
		return int(uint16(h) >> 6), int(h>>2&0xF) + 3, 2
	case h&0x03 == 0x01:
		return int(uint16(h) >> 2), 3, 2
	default:
		return int(uint8(h) >> 2), 3, 1
	}
}

// drainTail consumes whatever input is left one literal byte at a time once
// the stream is too short for full 32-bit reads. Running out of input before
// reaching target is reported as success with the short length; see the
// logged warning.
func drainTail(input, output []byte, outIdx, inIdx, target int, group uint32) (int, error) {
	inLen := len(input)

	for outIdx < target {
		if group == 1 {
			if inIdx+4 <= inLen {
				inIdx += 4
			}
			group = 0x80000000
		}
		if inIdx >= inLen {
			break
		}
		output[outIdx] = input[inIdx]
		outIdx++
		inIdx++
		group >>= 1
	}

	if outIdx < target {
		log.Printf("paz: decompress stopped short: %d of %d bytes (input exhausted)", outIdx, target)
	}
	return outIdx, nil
}
