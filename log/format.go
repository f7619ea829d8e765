package log

const (
	// Physical record header: checksum(4B), length(2B), type(1B). The
	// length field is 16 bits, so a record's payload can never exceed
	// MaxRecordSize bytes.
	headerSize = 4 + 2 + 1

	// MaxRecordSize is the largest payload AddRecord will accept.
	MaxRecordSize = 1<<16 - 1
)

type recordType byte

const (
	// recordFull is the only type ever written to disk in this format:
	// there is no FIRST/MIDDLE/LAST fragmentation, so every record that
	// makes it onto the wire is a complete logical record.
	recordFull recordType = 1

	// Reader-only sentinels, never persisted.
	recordEOF recordType = 0xfe
	recordBad recordType = 0xff
)
