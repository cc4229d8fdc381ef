package paz

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/padtools/pazex/ice"
)

// padBlock pads b with zeros up to the cipher block alignment.
func padBlock(b []byte) []byte {
	for len(b)%ice.BlockSize != 0 {
		b = append(b, 0)
	}
	return b
}

func encryptBlock(t *testing.T, key, b []byte) []byte {
	t.Helper()
	c, err := ice.New(key)
	require.NoError(t, err)
	b = padBlock(b)
	c.Encrypt(b)
	return b
}

// buildFolderBlock lays out [8 reserved bytes][name][NUL] per folder.
func buildFolderBlock(folders []string) []byte {
	var b []byte
	for _, name := range folders {
		b = append(b, make([]byte, 8)...)
		b = append(b, name...)
		b = append(b, 0)
	}
	return b
}

func buildFileBlock(files []string) []byte {
	var b []byte
	for _, name := range files {
		b = append(b, name...)
		b = append(b, 0)
	}
	return b
}

// writeIndexFile assembles a complete index file and returns its path.
func writeIndexFile(t *testing.T, dir string, folders, files []string, entries []Entry) string {
	t.Helper()

	var b []byte
	le := binary.LittleEndian

	b = le.AppendUint32(b, 1)                     // version
	b = le.AppendUint32(b, 1)                     // volume count
	b = append(b, make([]byte, volumeDescSize)...) // one unused descriptor

	b = le.AppendUint32(b, uint32(len(entries)))
	for _, e := range entries {
		b = le.AppendUint32(b, e.Hash)
		b = le.AppendUint32(b, e.FolderID)
		b = le.AppendUint32(b, e.FileID)
		b = le.AppendUint32(b, e.Volume)
		b = le.AppendUint32(b, e.Offset)
		b = le.AppendUint32(b, e.CompressedSize)
		b = le.AppendUint32(b, e.OriginalSize)
	}

	folderBlock := encryptBlock(t, PadKey, buildFolderBlock(folders))
	b = le.AppendUint32(b, uint32(len(folderBlock)))
	b = append(b, folderBlock...)

	fileBlock := encryptBlock(t, PadKey, buildFileBlock(files))
	b = le.AppendUint32(b, uint32(len(fileBlock)))
	b = append(b, fileBlock...)

	path := filepath.Join(dir, "pad00000.meta")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

// Folders are renumbered into the sorted namespace: with original order
// [b a c], entry folder ids map through [1 0 2].
func TestLoadIndexSortsFolders(t *testing.T) {
	entries := []Entry{
		{Hash: 10, FolderID: 0, FileID: 0, Volume: 0, Offset: 0, CompressedSize: 8, OriginalSize: 8},
		{Hash: 11, FolderID: 1, FileID: 1, Volume: 0, Offset: 8, CompressedSize: 8, OriginalSize: 8},
		{Hash: 12, FolderID: 2, FileID: 2, Volume: 0, Offset: 16, CompressedSize: 8, OriginalSize: 8},
	}
	path := writeIndexFile(t, t.TempDir(),
		[]string{"b", "a", "c"},
		[]string{"x.bin", "y.bin", "z.bin"},
		entries)

	idx, err := LoadIndex(path, PadKey)
	require.NoError(t, err)

	require.EqualValues(t, 1, idx.Version)
	require.EqualValues(t, 1, idx.VolumeCount)

	require.Len(t, idx.FolderPaths, 3)
	for i, want := range []string{"a", "b", "c"} {
		require.Equal(t, want, idx.FolderPaths[i].Name)
		require.EqualValues(t, i, idx.FolderPaths[i].Index)
	}

	require.Equal(t, []string{"x.bin", "y.bin", "z.bin"}, idx.FileNames)

	require.Len(t, idx.Entries, 3)
	require.EqualValues(t, 1, idx.Entries[0].FolderID) // was folder "b"
	require.EqualValues(t, 0, idx.Entries[1].FolderID) // was folder "a"
	require.EqualValues(t, 2, idx.Entries[2].FolderID) // was folder "c"

	// everything else survives untouched
	require.EqualValues(t, 10, idx.Entries[0].Hash)
	require.EqualValues(t, 8, idx.Entries[1].Offset)
	require.EqualValues(t, 8, idx.Entries[2].CompressedSize)
}

// Loading archives with equal folder-name multisets produces identical
// sorted sequences, whatever the authored order.
func TestLoadIndexSortCanonicity(t *testing.T) {
	a := writeIndexFile(t, t.TempDir(), []string{"z/sub", "m", "aa", "a"}, []string{"f"}, nil)
	b := writeIndexFile(t, t.TempDir(), []string{"a", "aa", "z/sub", "m"}, []string{"f"}, nil)

	ia, err := LoadIndex(a, PadKey)
	require.NoError(t, err)
	ib, err := LoadIndex(b, PadKey)
	require.NoError(t, err)

	require.Equal(t, ia.FolderPaths, ib.FolderPaths)
}

func TestLoadIndexSkipsEmptyFileNames(t *testing.T) {
	// a double NUL inside the block plus encryption padding at the end
	block := []byte("first\x00\x00second\x00")
	names := parseFileNames(padBlock(block), 4)
	require.Equal(t, []string{"first", "second"}, names)
}

func TestLoadIndexKeepsNonUTF8Names(t *testing.T) {
	raw := []byte{'l', 0xFF, 'g'}
	path := writeIndexFile(t, t.TempDir(), []string{string(raw)}, []string{string(raw)}, nil)

	idx, err := LoadIndex(path, PadKey)
	require.NoError(t, err)
	require.Equal(t, string(raw), idx.FolderPaths[0].Name)
	require.Equal(t, string(raw), idx.FileNames[0])
}

func TestLoadIndexErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadIndex(filepath.Join(t.TempDir(), "absent.meta"), PadKey)
		require.Error(t, err)
	})
	t.Run("bad key length", func(t *testing.T) {
		_, err := LoadIndex(filepath.Join(t.TempDir(), "absent.meta"), []byte{1, 2, 3})
		require.ErrorIs(t, err, ice.ErrInvalidKeyLength)
	})
	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.meta")
		require.NoError(t, os.WriteFile(path, []byte{1, 0, 0}, 0644))
		_, err := LoadIndex(path, PadKey)
		require.Error(t, err)
	})
	t.Run("folder id out of range", func(t *testing.T) {
		entries := []Entry{{FolderID: 9}}
		path := writeIndexFile(t, t.TempDir(), []string{"only"}, []string{"f"}, entries)
		_, err := LoadIndex(path, PadKey)
		require.Error(t, err)
	})
}
