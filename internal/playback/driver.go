package playback

import (
	"context"
	"errors"
)

// Options configures a Driver.
type Options struct {
	Loop bool
	// ReadChunkSize bounds how many rows are buffered ahead of the
	// consumer at once; 0 loads the whole dataset before emitting any
	// rows.
	ReadChunkSize int
}

// Driver is a lazy finite producer of Rows that a Stream Worker paces
// independently of the driver's own read cadence.
type Driver struct {
	path string
	opts Options
}

// New builds a Driver over the dataset at path.
func New(path string, opts Options) *Driver {
	return &Driver{path: path, opts: opts}
}

// Run streams rows to out until the dataset is exhausted (and Loop is
// false), ctx is cancelled, or a read error occurs. It closes out before
// returning.
func (d *Driver) Run(ctx context.Context, out chan<- Row) error {
	defer close(out)
	chunk := d.opts.ReadChunkSize
	if chunk < 0 {
		chunk = 0
	}
	for {
		if err := d.playOnce(ctx, out, chunk); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if !d.opts.Loop {
			return nil
		}
	}
}

func (d *Driver) playOnce(ctx context.Context, out chan<- Row, chunk int) error {
	f, err := openRowFile(d.path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]Row, 0, chunk)
	flush := func() error {
		for _, row := range buf {
			select {
			case out <- row:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		buf = buf[:0]
		return nil
	}

	// chunk==0 buffers the entire dataset before emitting any row, matching
	// a non-iterator whole-dataset load; chunk>0 flushes every chunk rows.
	err = scanRows(f, func(row Row) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf = append(buf, row)
		if chunk > 0 && len(buf) >= chunk {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}
