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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc is invoked after every extraction attempt with the number of
// attempts finished so far and the batch total. It is called from worker
// goroutines concurrently and must be reentrant. Every current value in
// [1, total] is reported exactly once, in no particular order.
type ProgressFunc func(current, total int)

// ExtractOptions tunes a batch extraction.
type ExtractOptions struct {
	// Mode selects ModeRaw or ModeConvert.
	Mode int
	// Workers bounds the worker pool; 0 means one per CPU.
	Workers int
	// ImageDecoder converts .dds/.dds1 payloads to PNG in ModeConvert.
	ImageDecoder Converter
	// BytecodeDecompiler converts .luac payloads to source in ModeConvert.
	BytecodeDecompiler Converter
	// Progress, if set, receives one callback per finished attempt.
	Progress ProgressFunc
}

// ExtractBatch retrieves every requested entry index and writes the payloads
// under outDir, mirroring the archive's folder/file namespace. Failed
// entries (bad index, missing volume, bounds violation, decode error,
// write error) are skipped; the count of successfully written entries is
// returned.
func (a *Archive) ExtractBatch(outDir string, indices []uint32, idx *Index, opts ExtractOptions) int {
	total := len(indices)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var done, succeeded int64
	var g errgroup.Group
	g.SetLimit(workers)

	for _, entryIdx := range indices {
		entryIdx := entryIdx
		g.Go(func() error {
			if a.extractOne(outDir, entryIdx, idx, &opts) {
				atomic.AddInt64(&succeeded, 1)
				atomic.AddUint64(&DefaultStats.EntriesRead, 1)
			} else {
				atomic.AddUint64(&DefaultStats.EntriesFailed, 1)
			}
			current := atomic.AddInt64(&done, 1)
			if opts.Progress != nil {
				opts.Progress(int(current), total)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(succeeded)
}

func (a *Archive) extractOne(outDir string, entryIdx uint32, idx *Index, opts *ExtractOptions) bool {
	if int(entryIdx) >= len(idx.Entries) {
		log.Printf("paz: entry index %d beyond table of %d", entryIdx, len(idx.Entries))
		return false
	}
	e := idx.Entries[entryIdx]
	if int(e.FolderID) >= len(idx.FolderPaths) || int(e.FileID) >= len(idx.FileNames) {
		log.Printf("paz: entry %d references folder %d / file %d out of range", entryIdx, e.FolderID, e.FileID)
		return false
	}

	folder := idx.FolderPaths[e.FolderID].Name
	name := idx.FileNames[e.FileID]
	// a single leading '/' is trimmed from each component so the
	// destination cannot escape outDir as an absolute path
	dst := filepath.Join(outDir,
		strings.TrimPrefix(folder, "/"),
		strings.TrimPrefix(name, "/"))

	_ = os.MkdirAll(filepath.Dir(dst), 0755)

	data, err := a.ReadEntry(e)
	if err != nil {
		log.Printf("paz: entry %d (%s/%s): %+v", entryIdx, folder, name, err)
		return false
	}

	if opts.Mode == ModeConvert {
		dst, data = convertPayload(dst, data, opts)
	}

	if err := os.WriteFile(dst, data, 0644); err != nil {
		log.Printf("paz: write %s: %v", dst, err)
		return false
	}
	atomic.AddUint64(&DefaultStats.BytesWritten, uint64(len(data)))
	return true
}
