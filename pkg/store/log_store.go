package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ssargent/akv/pkg/codec"
)

// LogStore is the append-only record file. It owns the single read/write
// handle on the file and never rewrites bytes it has already written.
type LogStore struct {
	file   *os.File
	codec  *codec.RecordCodec
	config LogStoreConfig
	path   string
}

// OpenLogStore opens the log at path, creating the file and its directory if
// needed. Existing content is kept as is.
func OpenLogStore(path string, config LogStoreConfig) (*LogStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	return &LogStore{
		file:   file,
		codec:  codec.NewRecordCodec(codec.WithMaxFieldSize(config.MaxFieldSize)),
		config: config,
		path:   path,
	}, nil
}

// AppendRaw encodes the pair and writes it at the end of the log.
// It returns the offset at which the record header starts.
func (l *LogStore) AppendRaw(key, value []byte) (int64, error) {
	if l.file == nil {
		return 0, ErrStoreClosed
	}

	// Encode first so an oversized key or value never reaches the file
	data, err := l.codec.Encode(key, value)
	if err != nil {
		return 0, err
	}

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	n, err := l.file.Write(data)
	if err != nil {
		if n > 0 {
			// Drop the partial frame; the write error is what the caller needs
			_ = l.file.Truncate(offset)
		}
		return 0, err
	}

	if l.config.SyncWrites {
		if err := l.file.Sync(); err != nil {
			return 0, err
		}
	}

	return offset, nil
}

// ReadAt decodes the record whose header starts at offset
func (l *LogStore) ReadAt(offset int64) (*codec.Record, error) {
	end, err := l.EndOffset()
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= end {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOffsetOutOfRange, offset, end)
	}

	record, err := l.codec.Decode(io.NewSectionReader(l.file, offset, end-offset))
	if err != nil {
		if err == io.EOF {
			err = ErrTruncatedRecord
		}
		return nil, fmt.Errorf("read record at offset %d: %w", offset, err)
	}
	return record, nil
}

// EndOffset returns the size of the log, which is where the next append lands
func (l *LogStore) EndOffset() (int64, error) {
	if l.file == nil {
		return 0, ErrStoreClosed
	}
	return l.file.Seek(0, io.SeekEnd)
}

// Iterator returns a forward scanner over the records from start to the
// current end of the log
func (l *LogStore) Iterator(start int64) (*LogIterator, error) {
	end, err := l.EndOffset()
	if err != nil {
		return nil, err
	}
	if start < 0 || start > end {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrOffsetOutOfRange, start, end)
	}

	return &LogIterator{
		reader: bufio.NewReaderSize(io.NewSectionReader(l.file, start, end-start), 64*1024),
		codec:  l.codec,
		next:   start,
		end:    end,
	}, nil
}

// Truncate cuts the log to size bytes. Only torn-tail repair uses it.
func (l *LogStore) Truncate(size int64) error {
	if l.file == nil {
		return ErrStoreClosed
	}
	if err := l.file.Truncate(size); err != nil {
		return err
	}
	return l.file.Sync()
}

// frameSearchChunk is how many candidate offsets NextFrame checks per read
const frameSearchChunk = 64 * 1024

// NextFrame looks for the first offset at or after start where a complete
// record with a non-empty key decodes and verifies. Torn-tail repair uses it
// to tell a half-written last record from a damaged length field that hides
// valid records behind it.
func (l *LogStore) NextFrame(start int64) (int64, bool, error) {
	end, err := l.EndOffset()
	if err != nil {
		return 0, false, err
	}
	if start < 0 {
		start = 0
	}

	buf := make([]byte, frameSearchChunk+codec.HeaderSize)
	for base := start; base+codec.HeaderSize <= end; base += frameSearchChunk {
		size := int64(len(buf))
		if end-base < size {
			size = end - base
		}
		n, err := l.file.ReadAt(buf[:size], base)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, false, err
		}

		for i := 0; i < frameSearchChunk && i+codec.HeaderSize <= n; i++ {
			offset := base + int64(i)
			hdr, err := codec.ParseHeader(buf[i : i+codec.HeaderSize])
			if err != nil || hdr.KeySize == 0 || hdr.FrameSize() > end-offset {
				continue
			}
			if _, err := l.codec.Decode(io.NewSectionReader(l.file, offset, hdr.FrameSize())); err == nil {
				return offset, true, nil
			}
		}
	}
	return 0, false, nil
}

// Sync forces a fsync to disk
func (l *LogStore) Sync() error {
	if l.file == nil {
		return ErrStoreClosed
	}
	return l.file.Sync()
}

// Close syncs and closes the file handle
func (l *LogStore) Close() error {
	if l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Path returns the file path
func (l *LogStore) Path() string {
	return l.path
}

// LogIterator walks the log one frame at a time.
//
// Frames that fail the checksum are still yielded, with Record() nil and
// Corrupt() set, so a caller can skip them and keep going. A truncated frame
// or an I/O failure ends the scan and is reported by Err().
type LogIterator struct {
	reader  *bufio.Reader
	codec   *codec.RecordCodec
	next    int64 // offset of the frame after the current one
	end     int64
	offset  int64 // offset of the current frame
	record  *codec.Record
	corrupt error
	err     error
}

// Next advances to the next frame and reports whether there is one
func (it *LogIterator) Next() bool {
	if it.err != nil {
		return false
	}

	it.offset = it.next
	it.record, it.corrupt = nil, nil

	record, err := it.codec.Decode(it.reader)
	if err == nil {
		it.record = record
		it.next += record.Size()
		return true
	}
	if err == io.EOF {
		return false
	}

	var csErr *codec.ChecksumError
	if errors.As(err, &csErr) {
		it.corrupt = err
		it.next += csErr.FrameSize()
		return true
	}

	it.err = fmt.Errorf("scan at offset %d: %w", it.offset, err)
	return false
}

// Offset returns the offset of the current frame
func (it *LogIterator) Offset() int64 {
	return it.offset
}

// NextOffset returns the offset just past the current frame
func (it *LogIterator) NextOffset() int64 {
	return it.next
}

// End returns the log size the scan was started against
func (it *LogIterator) End() int64 {
	return it.end
}

// Record returns the current record, or nil if the frame is corrupt
func (it *LogIterator) Record() *codec.Record {
	return it.record
}

// Corrupt returns the checksum failure of the current frame, if any
func (it *LogIterator) Corrupt() error {
	return it.corrupt
}

// Err returns the error that ended the scan, if any
func (it *LogIterator) Err() error {
	return it.err
}
