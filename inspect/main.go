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

package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/padtools/pazex/paz"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "pazinspect"
	myApp.Usage = "list and verify pad/paz archive indexes"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "index,i",
			Value: "pad00000.meta",
			Usage: "path to the master index file",
		},
		cli.StringFlag{
			Name:  "archive,a",
			Value: ".",
			Usage: "directory containing the pad*.paz volume files (for --verify)",
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "",
			Usage:  "archive key as hex (16 digits); empty selects the known pad key",
			EnvVar: "PAZEX_KEY",
		},
		cli.BoolFlag{
			Name:  "folders",
			Usage: "list the sorted folder table",
		},
		cli.BoolFlag{
			Name:  "files",
			Usage: "list the file-name table",
		},
		cli.BoolFlag{
			Name:  "entries",
			Usage: "list entry records with their resolved paths",
		},
		cli.StringFlag{
			Name:  "filter",
			Value: "",
			Usage: "only list rows containing this substring",
		},
		cli.IntFlag{
			Name:  "limit",
			Value: 0,
			Usage: "stop each listing after this many rows, 0 for all",
		},
		cli.BoolFlag{
			Name:  "verify",
			Usage: "cross-check every entry against the volume files on disk",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		key := paz.PadKey
		if s := c.String("key"); s != "" {
			var err error
			key, err = hex.DecodeString(s)
			checkError(err)
		}

		idx, err := paz.LoadIndex(c.String("index"), key)
		checkError(err)

		color.Cyan("index %s", c.String("index"))
		fmt.Println("version:", idx.Version)
		fmt.Println("volumes:", idx.VolumeCount)
		fmt.Println("folders:", len(idx.FolderPaths))
		fmt.Println("files:  ", len(idx.FileNames))
		fmt.Println("entries:", len(idx.Entries))

		filter := c.String("filter")
		limit := c.Int("limit")

		if c.Bool("folders") {
			listed := 0
			for _, f := range idx.FolderPaths {
				if filter != "" && !strings.Contains(f.Name, filter) {
					continue
				}
				fmt.Printf("%6d  %s\n", f.Index, f.Name)
				if listed++; limit > 0 && listed >= limit {
					break
				}
			}
		}

		if c.Bool("files") {
			listed := 0
			for i, name := range idx.FileNames {
				if filter != "" && !strings.Contains(name, filter) {
					continue
				}
				fmt.Printf("%6d  %s\n", i, name)
				if listed++; limit > 0 && listed >= limit {
					break
				}
			}
		}

		if c.Bool("entries") {
			listed := 0
			for i, e := range idx.Entries {
				path := entryPath(idx, e)
				if filter != "" && !strings.Contains(path, filter) {
					continue
				}
				fmt.Printf("%6d  vol %5d  off %10d  %10d -> %10d  %s\n",
					i, e.Volume, e.Offset, e.CompressedSize, e.OriginalSize, path)
				if listed++; limit > 0 && listed >= limit {
					break
				}
			}
		}

		if c.Bool("verify") {
			return verify(idx, c.String("archive"), key)
		}
		return nil
	}
	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

func entryPath(idx *paz.Index, e paz.Entry) string {
	if int(e.FolderID) >= len(idx.FolderPaths) || int(e.FileID) >= len(idx.FileNames) {
		return fmt.Sprintf("<folder %d / file %d out of range>", e.FolderID, e.FileID)
	}
	return idx.FolderPaths[e.FolderID].Name + "/" + idx.FileNames[e.FileID]
}

// verify walks every entry and checks the id ranges and that each payload
// lies inside its volume file.
func verify(idx *paz.Index, dir string, key []byte) error {
	archive, err := paz.OpenArchive(dir, key)
	checkError(err)

	volSizes := make(map[uint32]int64)
	missing := make(map[uint32]bool)
	volSize := func(volume uint32) (int64, bool) {
		if missing[volume] {
			return 0, false
		}
		if size, ok := volSizes[volume]; ok {
			return size, true
		}
		fi, err := os.Stat(archive.VolumePath(volume))
		if err != nil {
			missing[volume] = true
			return 0, false
		}
		volSizes[volume] = fi.Size()
		return fi.Size(), true
	}

	var bad int
	for i, e := range idx.Entries {
		if int(e.FolderID) >= len(idx.FolderPaths) || int(e.FileID) >= len(idx.FileNames) {
			color.Red("entry %d: folder %d / file %d out of range", i, e.FolderID, e.FileID)
			bad++
			continue
		}
		size, ok := volSize(e.Volume)
		if !ok {
			color.Red("entry %d (%s): volume %d missing", i, entryPath(idx, e), e.Volume)
			bad++
			continue
		}
		if int64(e.Offset)+int64(e.CompressedSize) > size {
			color.Red("entry %d (%s): payload [%d:%d] beyond volume end %d",
				i, entryPath(idx, e), e.Offset, int64(e.Offset)+int64(e.CompressedSize), size)
			bad++
		}
	}

	if bad > 0 {
		return errors.Errorf("%d of %d entries failed verification", bad, len(idx.Entries))
	}
	color.Green("all %d entries verified", len(idx.Entries))
	return nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
