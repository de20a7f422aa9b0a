// Package codec provides record serialization and deserialization for akv.
//
// The codec package implements the binary record format used by akv's
// single-file log. Every key-value pair written to the log is one record.
//
// # Record Format
//
// Records are serialized in a binary format with the following structure:
//
//	[CRC32(4)][KeySize(4)][ValueSize(4)][Key][Value]
//
// Fields:
//   - CRC32: CRC-32 (IEEE) of the key bytes followed by the value bytes (little-endian)
//   - KeySize: 32-bit unsigned integer indicating key length in bytes (little-endian)
//   - ValueSize: 32-bit unsigned integer indicating value length in bytes (little-endian)
//   - Key: Variable-length key data
//   - Value: Variable-length value data
//
// The total record size is: 12 bytes (header) + len(key) + len(value). It is
// never stored; readers recompute it from the two length fields. The log file
// is the plain concatenation of records, with no file header and no padding.
//
// # Usage
//
//	c := codec.NewRecordCodec()
//
//	encoded, err := c.Encode([]byte("key"), []byte("value"))
//	if err != nil {
//	    return err
//	}
//
//	record, err := c.Decode(bytes.NewReader(encoded))
//	if err != nil {
//	    return err
//	}
//
// # Error Handling
//
// Decode distinguishes three failure classes:
//   - io.EOF: the reader was exhausted exactly at a record boundary
//   - ErrTruncatedRecord: the reader ended inside a header or payload
//   - ErrChecksumMismatch (as *ChecksumError): the frame was complete but corrupt
//
// After a checksum mismatch the reader has been advanced past the whole frame,
// so a scanner can continue with the next record.
//
// Encode returns ErrKeyTooLarge or ErrValueTooLarge before producing any bytes
// when a length does not fit the codec's limit.
package codec
