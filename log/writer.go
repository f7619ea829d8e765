package log

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/util"
)

// Writer appends framed records to a write-ahead log. Unlike LevelDB's
// block-padded log, there is no fragmentation here: AddRecord writes
// exactly one header-then-payload record per call, and rejects anything
// too large for the 16-bit length field rather than splitting it.
type Writer struct {
	dest io.Writer
}

func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

func (w *Writer) AddRecord(data []byte) error {
	if len(data) > MaxRecordSize {
		return fmt.Errorf("%w: WAL record of %d bytes exceeds %d-byte limit", db.ErrInvalidArgument, len(data), MaxRecordSize)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(data)))
	header[6] = byte(recordFull)

	h := util.NewCRC32C()
	h.Write(header[6:7])
	h.Write(data)
	binary.LittleEndian.PutUint32(header[0:4], util.MaskCRC32(h.Sum32()))

	if _, err := w.dest.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.dest.Write(data); err != nil {
		return err
	}
	return nil
}
