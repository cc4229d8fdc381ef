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

// Package paz decodes pad/paz game archives: a master index file plus a
// family of numbered data volumes. The index is loaded once into an
// immutable in-memory form; entries are then retrieved (and optionally
// batch-extracted) by decrypting and decompressing their volume payloads.
package paz

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"

	"github.com/padtools/pazex/ice"
)

// PadKey is the 8-byte payload/index key of the archive family this package
// targets.
var PadKey = []byte{0x51, 0xF3, 0x0F, 0x11, 0x04, 0x24, 0x6A, 0x00}

// MetaKey is the secondary table key carried by the original tooling.
// Reserved; the core pipeline only uses PadKey.
var MetaKey = []byte{0x6A, 0xD5, 0x8D, 0x21, 0x02, 0x8F, 0x9C, 0x00}

// entrySize is the wire size of one entry record: seven little-endian u32s.
const entrySize = 28

// volumeDescSize is the per-volume descriptor size in the index header.
// The descriptor contents are unused and skipped.
const volumeDescSize = 12

// Entry describes one stored file: where its payload lives and how large it
// is before and after packing. Plain old data, freely copyable.
type Entry struct {
	Hash           uint32
	FolderID       uint32
	FileID         uint32
	Volume         uint32
	Offset         uint32
	CompressedSize uint32
	OriginalSize   uint32
}

func decodeEntry(b []byte) Entry {
	return Entry{
		Hash:           binary.LittleEndian.Uint32(b),
		FolderID:       binary.LittleEndian.Uint32(b[4:]),
		FileID:         binary.LittleEndian.Uint32(b[8:]),
		Volume:         binary.LittleEndian.Uint32(b[12:]),
		Offset:         binary.LittleEndian.Uint32(b[16:]),
		CompressedSize: binary.LittleEndian.Uint32(b[20:]),
		OriginalSize:   binary.LittleEndian.Uint32(b[24:]),
	}
}

// Folder is one directory name with its position in the sorted folder list.
type Folder struct {
	Name  string
	Index uint32
}

// Index is the decoded master index. Immutable after LoadIndex returns and
// safe to share across goroutines.
type Index struct {
	Version     uint32
	VolumeCount uint32
	FolderPaths []Folder
	FileNames   []string
	Entries     []Entry
}

// LoadIndex memory-maps the master index at path, decrypts the two string
// blocks with key, renumbers folder ids into the lexicographically sorted
// namespace, and returns the immutable result.
func LoadIndex(path string, key []byte) (*Index, error) {
	cipher, err := ice.New(key)
	if err != nil {
		return nil, err
	}

	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "paz: open index %s", path)
	}
	defer r.Close()

	total := int64(r.Len())
	read := func(off int64, n int) ([]byte, error) {
		if n < 0 || off < 0 || off+int64(n) > total {
			return nil, errors.Errorf("paz: index truncated: need %d bytes at %d, file is %d", n, off, total)
		}
		buf := make([]byte, n)
		if _, err := r.ReadAt(buf, off); err != nil {
			return nil, errors.Wrap(err, "paz: read index")
		}
		return buf, nil
	}
	readU32 := func(off int64) (uint32, error) {
		b, err := read(off, 4)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(b), nil
	}

	header, err := read(0, 8)
	if err != nil {
		return nil, err
	}
	version := binary.LittleEndian.Uint32(header)
	volumeCount := binary.LittleEndian.Uint32(header[4:])
	cursor := int64(8) + int64(volumeCount)*volumeDescSize

	fileCount, err := readU32(cursor)
	if err != nil {
		return nil, err
	}
	cursor += 4

	rawEntries, err := read(cursor, int(fileCount)*entrySize)
	if err != nil {
		return nil, err
	}
	cursor += int64(fileCount) * entrySize

	folderLen, err := readU32(cursor)
	if err != nil {
		return nil, err
	}
	folderRaw, err := read(cursor+4, int(folderLen))
	if err != nil {
		return nil, err
	}
	cursor += 4 + int64(folderLen)

	fileLen, err := readU32(cursor)
	if err != nil {
		return nil, err
	}
	fileRaw, err := read(cursor+4, int(fileLen))
	if err != nil {
		return nil, err
	}

	// the two string blocks are independent ciphertexts
	var g errgroup.Group
	g.Go(func() error {
		cipher.DecryptParallel(folderRaw)
		return nil
	})
	g.Go(func() error {
		cipher.DecryptParallel(fileRaw)
		return nil
	})
	_ = g.Wait()

	folders, idMap := parseFoldersSorted(folderRaw)
	fileNames := parseFileNames(fileRaw, int(fileCount))

	entries := make([]Entry, fileCount)
	for i := range entries {
		e := decodeEntry(rawEntries[i*entrySize:])
		if int(e.FolderID) >= len(idMap) {
			return nil, errors.Errorf("paz: entry %d references folder %d of %d", i, e.FolderID, len(idMap))
		}
		e.FolderID = idMap[e.FolderID]
		entries[i] = e
	}

	return &Index{
		Version:     version,
		VolumeCount: volumeCount,
		FolderPaths: folders,
		FileNames:   fileNames,
		Entries:     entries,
	}, nil
}

// parseFoldersSorted parses the decrypted folder block, sorts the folders by
// name, and returns them together with the old-index → sorted-position map.
func parseFoldersSorted(data []byte) ([]Folder, []uint32) {
	folders := parseFolders(data)

	sort.Slice(folders, func(a, b int) bool {
		return folders[a].Name < folders[b].Name
	})

	idMap := make([]uint32, len(folders))
	for newIdx := range folders {
		idMap[folders[newIdx].Index] = uint32(newIdx)
		folders[newIdx].Index = uint32(newIdx)
	}
	return folders, idMap
}

// parseFolders walks the folder block: each record is 8 reserved bytes
// followed by a NUL-terminated name. Parsing stops when fewer than a full
// reserved prefix remains; encryption padding therefore falls off the end.
func parseFolders(data []byte) []Folder {
	folders := make([]Folder, 0, 1024)
	i := 0
	for i+8 <= len(data) {
		i += 8
		start := i
		for i < len(data) && data[i] != 0 {
			i++
		}
		if i > start {
			// string() keeps non-UTF-8 bytes verbatim, as observed in
			// shipped archives
			folders = append(folders, Folder{Name: string(data[start:i]), Index: uint32(len(folders))})
		}
		i++
	}
	return folders
}

// parseFileNames walks the decrypted file block: NUL-terminated names, with
// empty names (padding, double NULs) skipped.
func parseFileNames(data []byte, sizeHint int) []string {
	names := make([]string, 0, sizeHint)
	i := 0
	for i < len(data) {
		start := i
		for i < len(data) && data[i] != 0 {
			i++
		}
		if i > start {
			names = append(names, string(data[start:i]))
		}
		i++
	}
	return names
}
