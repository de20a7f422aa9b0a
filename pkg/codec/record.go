package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// HeaderSize is the size of the fixed record header: CRC32(4) + KeySize(4) + ValueSize(4)
const HeaderSize = 12

// MaxFieldSize is the largest key or value the 32-bit length fields can describe
const MaxFieldSize = math.MaxUint32

var (
	// ErrChecksumMismatch is matched by every *ChecksumError
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTruncatedRecord is returned when the stream ends inside a header or payload
	ErrTruncatedRecord = errors.New("truncated record")
	ErrKeyTooLarge     = errors.New("key too large")
	ErrValueTooLarge   = errors.New("value too large")
)

// Record represents a key-value record as stored in the log
type Record struct {
	CRC32     uint32 // CRC32 of Key followed by Value
	KeySize   uint32 // Size of the key in bytes
	ValueSize uint32 // Size of the value in bytes
	Key       []byte // Key data
	Value     []byte // Value data
}

// Header is the fixed-size prefix of an encoded record
type Header struct {
	CRC32     uint32
	KeySize   uint32
	ValueSize uint32
}

// FrameSize returns the encoded size of the record the header describes
func (h Header) FrameSize() int64 {
	return HeaderSize + int64(h.KeySize) + int64(h.ValueSize)
}

// PayloadSize returns the number of key and value bytes following the header
func (h Header) PayloadSize() int64 {
	return int64(h.KeySize) + int64(h.ValueSize)
}

// ChecksumError reports a complete frame whose stored checksum does not match its payload.
// The reader has already been advanced past the frame.
type ChecksumError struct {
	Header   Header
	Computed uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: stored %08x, computed %08x", ErrChecksumMismatch, e.Header.CRC32, e.Computed)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// FrameSize returns the number of bytes the corrupt frame occupies
func (e *ChecksumError) FrameSize() int64 {
	return e.Header.FrameSize()
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct {
	maxFieldSize uint64
}

// Option configures a RecordCodec
type Option func(*RecordCodec)

// WithMaxFieldSize lowers the largest key or value Encode accepts.
// Values above MaxFieldSize are clamped to it.
func WithMaxFieldSize(n uint64) Option {
	return func(c *RecordCodec) {
		if n > 0 && n < MaxFieldSize {
			c.maxFieldSize = n
		}
	}
}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec(opts ...Option) *RecordCodec {
	c := &RecordCodec{maxFieldSize: MaxFieldSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode serializes a key-value pair into a binary record.
// Format: [CRC32(4)][KeySize(4)][ValueSize(4)][Key][Value], little-endian
func (c *RecordCodec) Encode(key, value []byte) ([]byte, error) {
	if uint64(len(key)) > c.maxFieldSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrKeyTooLarge, len(key), c.maxFieldSize)
	}
	if uint64(len(value)) > c.maxFieldSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, len(value), c.maxFieldSize)
	}

	buf := make([]byte, HeaderSize+len(key)+len(value))
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	binary.LittleEndian.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[HeaderSize:]))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(value)))

	return buf, nil
}

// ParseHeader decodes the fixed record header from the first HeaderSize bytes of data
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedRecord, HeaderSize, len(data))
	}
	return Header{
		CRC32:     binary.LittleEndian.Uint32(data[0:4]),
		KeySize:   binary.LittleEndian.Uint32(data[4:8]),
		ValueSize: binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// Decode reads one record from r, which must be positioned at a record start.
//
// It returns io.EOF when r is exhausted before the first header byte,
// ErrTruncatedRecord when r ends inside the frame and a *ChecksumError
// when the frame is complete but fails validation.
func (c *RecordCodec) Decode(r io.Reader) (*Record, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %w", ErrTruncatedRecord, err)
		}
		return nil, err
	}
	h, _ := ParseHeader(hdr[:])

	// Grow the payload buffer as bytes arrive so a corrupt length field
	// fails on short read instead of allocating up front.
	var payload bytes.Buffer
	n, err := io.CopyN(&payload, r, h.PayloadSize())
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: payload needs %d bytes, have %d: %w",
				ErrTruncatedRecord, h.PayloadSize(), n, io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	data := payload.Bytes()
	rec := &Record{
		CRC32:     h.CRC32,
		KeySize:   h.KeySize,
		ValueSize: h.ValueSize,
		Key:       data[:h.KeySize:h.KeySize],
		Value:     data[h.KeySize:],
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the integrity of a record using CRC32
func (r *Record) Validate() error {
	if computed := r.calculateCRC32(); computed != r.CRC32 {
		return &ChecksumError{
			Header:   Header{CRC32: r.CRC32, KeySize: r.KeySize, ValueSize: r.ValueSize},
			Computed: computed,
		}
	}
	return nil
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int64 {
	return HeaderSize + int64(len(r.Key)) + int64(len(r.Value))
}

// IsTombstone reports whether the record marks its key deleted.
// An empty value and a deletion are the same thing in this format.
func (r *Record) IsTombstone() bool {
	return len(r.Value) == 0
}

// newRecord builds a record with its checksum filled in
func newRecord(key, value []byte) (*Record, error) {
	if uint64(len(key)) > MaxFieldSize {
		return nil, ErrKeyTooLarge
	}
	if uint64(len(value)) > MaxFieldSize {
		return nil, ErrValueTooLarge
	}
	r := &Record{
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Key:       key,
		Value:     value,
	}
	r.CRC32 = r.calculateCRC32()
	return r, nil
}

// calculateCRC32 computes the checksum over the key bytes then the value bytes
func (r *Record) calculateCRC32() uint32 {
	crc := crc32.NewIEEE()
	crc.Write(r.Key)
	crc.Write(r.Value)
	return crc.Sum32()
}
