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
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Extraction modes.
const (
	// ModeRaw writes the decrypted/decompressed payload as-is.
	ModeRaw = 0
	// ModeConvert additionally routes known formats through the
	// host-supplied converters: .dds/.dds1 payloads become .png, .luac
	// payloads become .lua. Everything else behaves like ModeRaw.
	ModeConvert = 1
)

// Converter rewrites a payload into another representation. Host-supplied;
// must be safe to call from multiple goroutines.
type Converter func([]byte) ([]byte, error)

// convertPayload applies the mode-1 conversion table to one destination
// path + payload. A missing converter or a converter error falls back to
// the raw payload under the original name; errors are logged.
func convertPayload(path string, data []byte, opts *ExtractOptions) (string, []byte) {
	var conv Converter
	var newExt string

	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".dds", ".dds1":
		conv, newExt = opts.ImageDecoder, ".png"
	case ".luac":
		conv, newExt = opts.BytecodeDecompiler, ".lua"
	default:
		return path, data
	}
	if conv == nil {
		return path, data
	}

	out, err := conv(data)
	if err != nil {
		log.Printf("paz: convert %s: %v; writing raw payload", path, err)
		return path, data
	}
	atomic.AddUint64(&DefaultStats.Converted, 1)
	return strings.TrimSuffix(path, ext) + newExt, out
}
