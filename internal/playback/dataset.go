// Package playback implements a lazy finite source of (index, vector) rows
// read from a stored dataset, optionally looping and reading in chunks,
// optionally brotli-compressed on disk, generalized from a chunked-HDF5-read
// pattern re-expressed over a flat JSON-lines row format since this corpus
// carries no HDF5 binding, only github.com/andybalholm/brotli for the
// compression layer.
package playback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
)

// Row is one (index, vector) pair read from a dataset.
type Row struct {
	Index  int64
	Values []float64
}

// openRowFile opens path for reading, transparently wrapping it in a brotli
// reader when the name ends in ".br".
func openRowFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playback: open %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".br") {
		return &brotliReadCloser{br: brotli.NewReader(f), under: f}, nil
	}
	return f, nil
}

type brotliReadCloser struct {
	br    io.Reader
	under io.Closer
}

func (b *brotliReadCloser) Read(p []byte) (int, error) { return b.br.Read(p) }
func (b *brotliReadCloser) Close() error               { return b.under.Close() }

// scanRows decodes one JSON array per line as [index, v0, v1...] and
// invokes fn for each successfully-decoded row, stopping at the first
// error from fn or from decoding.
func scanRows(r io.Reader, fn func(Row) error) error {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var raw []float64
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return fmt.Errorf("playback: decode row: %w", err)
		}
		if len(raw) < 1 {
			return fmt.Errorf("playback: row has no index column")
		}
		row := Row{Index: int64(raw[0]), Values: raw[1:]}
		if err := fn(row); err != nil {
			return err
		}
	}
	return sc.Err()
}
