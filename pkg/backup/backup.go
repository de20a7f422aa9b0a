// Package backup writes compressed copies of a log file and restores them.
//
// A backup is the log's bytes run through zstd. Restoring decodes every
// record while writing so a damaged or truncated backup is rejected before
// it replaces anything.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kjk/common/atomicfile"
	"github.com/klauspost/compress/zstd"
	"github.com/ssargent/akv/pkg/codec"
)

// ErrDestinationExists is returned by Restore when the target log already
// exists and Force is not set
var ErrDestinationExists = errors.New("destination log already exists")

// Result describes a finished backup or restore
type Result struct {
	Records         int64         `json:"records"`
	RecordsSkipped  int64         `json:"records_skipped"`
	Bytes           int64         `json:"bytes"`
	CompressedBytes int64         `json:"compressed_bytes"`
	Duration        time.Duration `json:"duration"`
}

// RestoreOptions controls Restore
type RestoreOptions struct {
	Force        bool   // Replace an existing log
	SkipCorrupt  bool   // Keep going past records that fail the checksum, as Load does
	MaxFieldSize uint64 // Field limit used while verifying, 0 = codec default
}

// Backup compresses the log at src into dst. dst only appears once it is
// complete.
func Backup(src, dst string) (*Result, error) {
	start := time.Now()

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	out, err := atomicfile.New(dst)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	defer out.RemoveIfNotClosed()

	counter := &countingWriter{w: out}
	zw, err := zstd.NewWriter(counter, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}

	n, err := io.Copy(zw, in)
	if err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("compress log: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress log: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	return &Result{
		Bytes:           n,
		CompressedBytes: counter.n,
		Duration:        time.Since(start),
	}, nil
}

// Restore decompresses the backup at src into a log at dst. Every record is
// decoded and checksummed on the way; any failure leaves dst untouched.
// With SkipCorrupt, frames failing the checksum are copied as they are and
// counted, so the restored log matches the original byte for byte and Load
// skips them again.
func Restore(src, dst string, opts RestoreOptions) (*Result, error) {
	start := time.Now()

	if !opts.Force {
		if _, err := os.Stat(dst); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer in.Close()

	zr, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	out, err := atomicfile.New(dst)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	defer out.RemoveIfNotClosed()

	counter := &countingWriter{w: out}
	recordCodec := codec.NewRecordCodec(codec.WithMaxFieldSize(opts.MaxFieldSize))
	tee := io.TeeReader(zr, counter)

	result := &Result{}
	for {
		offset := counter.n
		_, err := recordCodec.Decode(tee)
		if err == io.EOF {
			break
		}
		if err != nil {
			if opts.SkipCorrupt && errors.Is(err, codec.ErrChecksumMismatch) {
				result.RecordsSkipped++
				continue
			}
			return nil, fmt.Errorf("verify record at offset %d: %w", offset, err)
		}
		result.Records++
	}

	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("write log: %w", err)
	}

	info, err := in.Stat()
	if err == nil {
		result.CompressedBytes = info.Size()
	}
	result.Bytes = counter.n
	result.Duration = time.Since(start)
	return result, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
