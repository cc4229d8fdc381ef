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
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/padtools/pazex/paz"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		// add more log flags for debugging
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "pazex"
	myApp.Usage = "batch extractor for pad/paz game archives"
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
			Usage: "directory containing the pad*.paz volume files",
		},
		cli.StringFlag{
			Name:  "out,o",
			Value: "extracted",
			Usage: "output directory",
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "",
			Usage:  "archive key as hex (16 digits); empty selects the known pad key",
			EnvVar: "PAZEX_KEY",
		},
		cli.IntFlag{
			Name:  "mode",
			Value: 0,
			Usage: "0 writes raw payloads, 1 selects convert mode (dds->png, luac->lua); this binary registers no converters, so mode 1 also writes raw payloads",
		},
		cli.IntFlag{
			Name:  "workers",
			Value: 0,
			Usage: "worker pool size, 0 for one per CPU",
		},
		cli.StringFlag{
			Name:  "filter",
			Value: "",
			Usage: "only extract entries whose folder/file path contains this substring",
		},
		cli.IntFlag{
			Name:  "from",
			Value: 0,
			Usage: "first entry index of the batch",
		},
		cli.IntFlag{
			Name:  "to",
			Value: -1,
			Usage: "last entry index of the batch (inclusive), -1 for the end",
		},
		cli.BoolFlag{
			Name:  "noprogress",
			Usage: "disable the progress bar",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect extraction stats to file, aware of timeformat in golang, like: ./stats-20060102.log",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collect period, in seconds",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress all log output, the per-entry failure messages included",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "", // when the value is not empty, the config path must exists
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Index = c.String("index")
		config.Archive = c.String("archive")
		config.Out = c.String("out")
		config.Key = c.String("key")
		config.Mode = c.Int("mode")
		config.Workers = c.Int("workers")
		config.Filter = c.String("filter")
		config.From = c.Int("from")
		config.To = c.Int("to")
		config.NoProgress = c.Bool("noprogress")
		config.StatsLog = c.String("statslog")
		config.StatsPeriod = c.Int("statsperiod")
		config.Log = c.String("log")
		config.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		// log redirect
		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}
		if config.Quiet {
			log.SetOutput(quietWriter{})
		}

		key := paz.PadKey
		if config.Key != "" {
			var err error
			key, err = hex.DecodeString(config.Key)
			checkError(err)
		}

		log.Println("version:", VERSION)
		log.Println("index:", config.Index)
		log.Println("archive:", config.Archive)
		log.Println("out:", config.Out)
		log.Println("mode:", config.Mode)
		log.Println("workers:", config.Workers)
		log.Println("filter:", config.Filter)
		log.Println("statslog:", config.StatsLog)
		log.Println("statsperiod:", config.StatsPeriod)

		start := time.Now()
		idx, err := paz.LoadIndex(config.Index, key)
		checkError(err)
		log.Println("index version:", idx.Version)
		log.Println("volumes:", idx.VolumeCount)
		log.Println("folders:", len(idx.FolderPaths))
		log.Println("files:", len(idx.FileNames))
		log.Println("entries:", len(idx.Entries))
		log.Println("index loaded in:", time.Since(start))

		archive, err := paz.OpenArchive(config.Archive, key)
		checkError(err)

		indices := selectEntries(idx, &config)
		if len(indices) == 0 {
			color.Yellow("nothing to extract")
			return nil
		}

		if config.StatsLog != "" {
			go paz.StatsLogger(config.StatsLog, config.StatsPeriod)
		}

		opts := paz.ExtractOptions{
			Mode:    config.Mode,
			Workers: config.Workers,
		}
		if config.Mode == paz.ModeConvert {
			// converters are host-supplied through the library API; the
			// standalone binary carries none and falls back to raw payloads
			log.Println("convert mode: no converters registered, known formats are written raw")
		}

		var progress *mpb.Progress
		if !config.NoProgress {
			progress = mpb.New(mpb.WithWidth(64))
			bar := progress.AddBar(int64(len(indices)),
				mpb.PrependDecorators(
					decor.Name("extracting "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(decor.Percentage()),
			)
			opts.Progress = func(current, total int) {
				bar.Increment()
			}
		}

		start = time.Now()
		count := archive.ExtractBatch(config.Out, indices, idx, opts)
		if progress != nil {
			progress.Wait()
		}

		stats := paz.DefaultStats.Copy()
		if count == len(indices) {
			color.Green("extracted %d/%d entries in %v", count, len(indices), time.Since(start))
		} else {
			color.Yellow("extracted %d/%d entries in %v (%d failed)",
				count, len(indices), time.Since(start), len(indices)-count)
		}
		log.Println("bytes read:", stats.BytesRead, "written:", stats.BytesWritten)
		log.Println("decrypted:", stats.PayloadsDecrypted, "decompressed:", stats.PayloadsDecompressed)
		return nil
	}
	myApp.Run(os.Args)
}

// selectEntries resolves the --from/--to range and the path filter into the
// batch's entry indices.
func selectEntries(idx *paz.Index, config *Config) []uint32 {
	from := config.From
	if from < 0 {
		from = 0
	}
	to := config.To
	if to < 0 || to >= len(idx.Entries) {
		to = len(idx.Entries) - 1
	}

	var indices []uint32
	for i := from; i <= to; i++ {
		if config.Filter != "" {
			e := idx.Entries[i]
			if int(e.FolderID) >= len(idx.FolderPaths) || int(e.FileID) >= len(idx.FileNames) {
				continue
			}
			path := idx.FolderPaths[e.FolderID].Name + "/" + idx.FileNames[e.FileID]
			if !strings.Contains(path, config.Filter) {
				continue
			}
		}
		indices = append(indices, uint32(i))
	}
	return indices
}

// quietWriter discards every log line in --quiet mode, not only the
// per-entry ones.
type quietWriter struct{}

func (quietWriter) Write(p []byte) (int, error) { return len(p), nil }

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
