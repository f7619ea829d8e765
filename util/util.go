package util

import (
	"encoding/binary"
	"hash"
	"hash/crc32"

	"github.com/augurdb/augur/db"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// NewCRC32C returns a running CRC-32C (Castagnoli) hash, the checksum used
// for WAL records and sstable blocks throughout this engine.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

func ChecksumCRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

func VarintLength(x uint64) int {
	l := 1
	for x >= 0x80 {
		x >>= 7
		l++
	}
	return l
}

func AppendLengthPrefixedBytes(dest, value []byte) []byte {
	dest = binary.AppendUvarint(dest, uint64(len(value)))
	dest = append(dest, value...)
	return dest
}

func GetLengthPrefixedBytes(input []byte) ([]byte, int) {
	length, n := binary.Uvarint(input)
	if n <= 0 {
		return nil, 0
	}
	if len(input)-n < int(length) {
		return nil, 0
	}
	return input[n : n+int(length)], n + int(length)
}

func MinInt(a, b int) int {
	if a <= b {
		return a
	} else {
		return b
	}
}

const MaskDelta = 0xa282ead8

func MaskCRC32(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + MaskDelta
}

func UnmaskCRC32(masked uint32) uint32 {
	rot := masked - MaskDelta
	return (rot >> 17) | (rot << 15)
}

type cleanupIterator struct {
	db.Iterator
	cleanup func()
	closed  bool
}

// NewCleanupIterator wraps iter so cleanup is invoked exactly once, when the
// returned iterator is closed.
func NewCleanupIterator(iter db.Iterator, cleanup func()) db.Iterator {
	return &cleanupIterator{
		Iterator: iter,
		cleanup:  cleanup,
	}
}

func (it *cleanupIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	err := it.Iterator.Close()
	it.cleanup()
	return err
}
