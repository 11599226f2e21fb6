// Package archive writes the run's gridded time-series output: one row
// per reach (the "feature_id" dimension, appendable) by a fixed "time"
// dimension, carrying flow/velocity/depth series. A single writer
// goroutine owns the file handle and serializes every mutation, fed by
// all reach workers through a bounded channel — spec.md §4.8.
package archive

import (
	"bufio"
	"compress/gzip"
	"encoding/gob"
	"io"
	"os"
	"sync"
	"time"

	"router/pkg/apperror"
)

// FillValue marks a missing sample, mirroring the netCDF "_FillValue"/
// "missing_value" attribute convention this format stands in for.
const FillValue = -9999.0

// gzipMagic is the two-byte gzip header, used to sniff a file's
// compression on Load without requiring the caller to remember.
var gzipMagic = [2]byte{0x1f, 0x8b}

// Attributes carries the archive's global (file-level) metadata.
type Attributes struct {
	Title         string
	ReferenceTime time.Time
	CodeVersion   string
}

// Block is one reach's complete result series, submitted to the writer
// exactly once.
type Block struct {
	FeatureID uint32
	Flow      []float64
	Velocity  []float64
	Depth     []float64
}

// File is the archive's in-memory and on-disk representation: a fixed
// "time" dimension shared by every row, and an appendable "feature_id"
// dimension built up one Block at a time.
type File struct {
	Attributes Attributes
	Times      []float64 // seconds since Attributes.ReferenceTime
	FeatureIDs []int64
	Flow       [][]float64
	Velocity   [][]float64
	Depth      [][]float64
}

// Writer serializes concurrent reach result blocks into a single File
// and persists it on Close. All mutation happens on the writer's own
// goroutine; Submit only ever sends on a channel.
type Writer struct {
	file   *File
	blocks chan Block
	wg     sync.WaitGroup
}

// NewWriter starts a Writer's background goroutine. times is the fixed
// time dimension shared by every reach's series; bufferSize bounds how
// far workers can run ahead of the writer before Submit blocks.
func NewWriter(times []float64, attrs Attributes, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	w := &Writer{
		file:   &File{Attributes: attrs, Times: times},
		blocks: make(chan Block, bufferSize),
	}

	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) run() {
	defer w.wg.Done()
	for block := range w.blocks {
		w.file.FeatureIDs = append(w.file.FeatureIDs, int64(block.FeatureID))
		w.file.Flow = append(w.file.Flow, block.Flow)
		w.file.Velocity = append(w.file.Velocity, block.Velocity)
		w.file.Depth = append(w.file.Depth, block.Depth)
	}
}

// Submit enqueues a reach's finished result block. Safe to call from
// any number of worker goroutines.
func (w *Writer) Submit(block Block) {
	w.blocks <- block
}

// Close stops accepting new blocks, waits for the writer goroutine to
// drain the channel, and persists the archive to path. gzipCompress
// wraps the encoded stream in gzip.
func (w *Writer) Close(path string, gzipCompress bool) error {
	close(w.blocks)
	w.wg.Wait()
	return Save(w.file, path, gzipCompress)
}

// Save gob-encodes f to path, optionally gzip-compressing the stream.
func Save(f *File, path string, gzipCompress bool) error {
	out, err := os.Create(path)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeArchiveIOError, "creating archive file").WithDetails("path", path)
	}
	defer out.Close()

	var dst io.Writer = out
	var gz *gzip.Writer
	if gzipCompress {
		gz = gzip.NewWriter(out)
		dst = gz
	}

	if err := gob.NewEncoder(dst).Encode(f); err != nil {
		return apperror.Wrap(err, apperror.CodeArchiveIOError, "encoding archive file").WithDetails("path", path)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return apperror.Wrap(err, apperror.CodeArchiveIOError, "closing gzip stream").WithDetails("path", path)
		}
	}

	return nil
}

// Load reads an archive previously written by Save, auto-detecting
// gzip compression from the stream's magic bytes.
func Load(path string) (*File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeArchiveIOError, "opening archive file").WithDetails("path", path)
	}
	defer in.Close()

	br := bufio.NewReader(in)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, apperror.Wrap(err, apperror.CodeArchiveIOError, "reading archive header").WithDetails("path", path)
	}

	var src io.Reader = br
	if len(magic) == 2 && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeArchiveIOError, "opening gzip stream").WithDetails("path", path)
		}
		defer gz.Close()
		src = gz
	}

	var f File
	if err := gob.NewDecoder(src).Decode(&f); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeArchiveIOError, "decoding archive file").WithDetails("path", path)
	}

	return &f, nil
}
