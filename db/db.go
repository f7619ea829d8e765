package db

import (
	"github.com/cockroachdb/errors"
)

type DB interface {
	Get(key []byte, options *ReadOptions) ([]byte, error)
	Put(key, value []byte, options *WriteOptions) error
	Delete(key []byte, options *WriteOptions) error
	Write(batch WriteBatch, options *WriteOptions) error
	NewIterator(options *ReadOptions) (Iterator, error)
	GetSnapshot() Snapshot
	Metrics() MetricsSnapshot
	Close() error
}

type Iterator interface {
	Valid() bool
	SeekToFirst()
	SeekToLast()
	Seek(target []byte)
	Next()
	Prev()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

type Snapshot interface {
	Release()
}

type CompressionType uint8

const (
	NoCompression CompressionType = iota
	ZstdCompression
)

type Options struct {
	CreateIfMissing      bool
	ErrorIfExists        bool
	ParanoidChecks       bool
	BlockSize            int
	BlockRestartInterval int
	MaxFileSize          uint64
	WriteBufferSize      int
	MaxOpenFiles         int
	BlockCacheCapacity   int
	BloomBitsPerKey      int
	FilterPolicy         FilterPolicy
	Compression          CompressionType
	Comparator           Comparator
	Logger               Logger
}

func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:      true,
		ErrorIfExists:        false,
		ParanoidChecks:       false,
		BlockSize:            4 * 1024,
		BlockRestartInterval: 16,
		MaxFileSize:          2 * 1024 * 1024,
		WriteBufferSize:      4 * 1024 * 1024,
		MaxOpenFiles:         1000,
		BlockCacheCapacity:   8 * 1024 * 1024,
		BloomBitsPerKey:      10,
		Compression:          NoCompression,
	}
}

type ReadOptions struct {
	Snapshot       Snapshot
	VerifyChecksum bool
	FillCache      bool
}

type WriteOptions struct {
	Sync bool
}

var (
	ErrNotFound        = errors.New("not found")
	ErrCorruption      = errors.New("corrupted")
	ErrNotSupported    = errors.New("not supported")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIO              = errors.New("io error")
	ErrShuttingDown    = errors.New("database is shutting down")
	ErrClosed          = errors.New("database is closed")
)
