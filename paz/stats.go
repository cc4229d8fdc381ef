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
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Stats holds extraction counters, all updated with atomic adds.
type Stats struct {
	EntriesRead          uint64 // payloads retrieved and written
	EntriesFailed        uint64 // retrieval or write failures
	BytesRead            uint64 // raw bytes copied out of volumes
	BytesWritten         uint64 // bytes written to output files
	PayloadsDecrypted    uint64 // payloads that carried the cipher layer
	PayloadsDecompressed uint64 // payloads that carried the compression container
	Converted            uint64 // payloads rewritten by a mode-1 converter
}

// DefaultStats is the process-wide counter set.
var DefaultStats = new(Stats)

// Header returns the field names, aligned with ToSlice.
func (s *Stats) Header() []string {
	return []string{
		"EntriesRead",
		"EntriesFailed",
		"BytesRead",
		"BytesWritten",
		"PayloadsDecrypted",
		"PayloadsDecompressed",
		"Converted",
	}
}

// ToSlice returns the current values formatted for CSV output.
func (s *Stats) ToSlice() []string {
	t := s.Copy()
	return []string{
		fmt.Sprint(t.EntriesRead),
		fmt.Sprint(t.EntriesFailed),
		fmt.Sprint(t.BytesRead),
		fmt.Sprint(t.BytesWritten),
		fmt.Sprint(t.PayloadsDecrypted),
		fmt.Sprint(t.PayloadsDecompressed),
		fmt.Sprint(t.Converted),
	}
}

// Copy makes a point-in-time snapshot.
func (s *Stats) Copy() *Stats {
	return &Stats{
		EntriesRead:          atomic.LoadUint64(&s.EntriesRead),
		EntriesFailed:        atomic.LoadUint64(&s.EntriesFailed),
		BytesRead:            atomic.LoadUint64(&s.BytesRead),
		BytesWritten:         atomic.LoadUint64(&s.BytesWritten),
		PayloadsDecrypted:    atomic.LoadUint64(&s.PayloadsDecrypted),
		PayloadsDecompressed: atomic.LoadUint64(&s.PayloadsDecompressed),
		Converted:            atomic.LoadUint64(&s.Converted),
	}
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.EntriesRead, 0)
	atomic.StoreUint64(&s.EntriesFailed, 0)
	atomic.StoreUint64(&s.BytesRead, 0)
	atomic.StoreUint64(&s.BytesWritten, 0)
	atomic.StoreUint64(&s.PayloadsDecrypted, 0)
	atomic.StoreUint64(&s.PayloadsDecompressed, 0)
	atomic.StoreUint64(&s.Converted, 0)
}

// StatsLogger periodically appends DefaultStats to a CSV file. The filename
// part of path is passed through time.Format, so a pattern like
// "stats-20060102.csv" rolls the file daily. Blocks; run in a goroutine.
func StatsLogger(path string, interval int) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}
		w := csv.NewWriter(f)
		// write header in empty file
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, DefaultStats.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, DefaultStats.ToSlice()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
